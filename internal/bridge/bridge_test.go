package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"aquarium-monitor/internal/common/mqtt"
	"aquarium-monitor/internal/models"
	"aquarium-monitor/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []published
	unsubscribed []string
	publishErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]mqtt.MessageHandler{}}
}

func (c *fakeClient) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	return nil
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{topic: topic, payload: payload})
	return nil
}

func (c *fakeClient) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return nil
}

func (c *fakeClient) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	require.True(t, ok, "no handler for %s", topic)
	return h(topic, []byte(payload))
}

func setupBridge(t *testing.T) (*fakeClient, *store.Store, *Bridge) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	s := store.New(rc, store.DefaultOptions(), zap.NewNop())

	client := newFakeClient()
	b := New(client, func(id string) Writer { return s.Document(id) }, DefaultTopics(), 1, zap.NewNop())
	b.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return client, s, b
}

func TestBridge_TelemetryMergesSensorsOnly(t *testing.T) {
	client, s, b := setupBridge(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx, "tank-1", models.DeviceState{
		Controls: &models.Controls{Pump1: true, LampBrightness: 70},
	}))
	require.NoError(t, b.Start(ctx, []string{"tank-1"}))

	err := client.deliver(t, "aquarium/tank-1/telemetry",
		`{"temperature":24.5,"ph":6.9,"turbidity":3.2,"ammonia":0.05,"uv":950,"waterLevel":88,"waterLevelCm":21.5,"foodEmpty":false,"timestamp":1700000001234}`)
	require.NoError(t, err)

	got, err := s.Document("tank-1").ReadOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.Sensors)
	assert.Equal(t, 24.5, got.Sensors.Temperature)
	assert.Equal(t, 88, got.Sensors.WaterLevel)
	assert.Equal(t, int64(1700000001234), got.LastUpdate)
	assert.Equal(t, &models.Controls{Pump1: true, LampBrightness: 70}, got.Controls)
	assert.Nil(t, got.Outputs)
}

func TestBridge_TelemetryWithoutTimestampUsesNow(t *testing.T) {
	client, s, b := setupBridge(t)
	ctx := context.Background()
	require.NoError(t, b.Start(ctx, []string{"tank-1"}))

	require.NoError(t, client.deliver(t, "aquarium/tank-1/telemetry",
		`{"temperature":25,"ph":7,"turbidity":4,"ammonia":0.1,"waterLevel":80,"outputs":{"pump1":true,"pump2":false,"lampBrightness":10}}`))

	got, err := s.Document("tank-1").ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), got.LastUpdate)
	require.NotNil(t, got.Outputs)
	assert.True(t, got.Outputs.Pump1)
}

func TestBridge_MalformedTelemetry(t *testing.T) {
	client, s, b := setupBridge(t)
	ctx := context.Background()
	require.NoError(t, b.Start(ctx, []string{"tank-1"}))

	err := client.deliver(t, "aquarium/tank-1/telemetry", `{"temperature":"warm"}`)

	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))
	_, err = s.Document("tank-1").ReadOnce(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBridge_TelemetryMissingReadingsIsRejected(t *testing.T) {
	client, s, b := setupBridge(t)
	ctx := context.Background()
	prior := models.DeviceState{
		Sensors:  &models.Sensors{Temperature: 24, PH: 7.2, Turbidity: 3, Ammonia: 0.05, WaterLevel: 90},
		Controls: &models.Controls{LampBrightness: 40},
	}
	require.NoError(t, s.Seed(ctx, "tank-1", prior))
	require.NoError(t, b.Start(ctx, []string{"tank-1"}))

	for _, payload := range []string{`{}`, `{"temperature":25,"ph":7,"turbidity":4,"ammonia":0.1}`} {
		err := client.deliver(t, "aquarium/tank-1/telemetry", payload)
		var verr *models.ValidationError
		require.True(t, errors.As(err, &verr), "payload %s: got %v", payload, err)
	}

	got, err := s.Document("tank-1").ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, prior.Sensors, got.Sensors)
	assert.Zero(t, got.LastUpdate)
}

func TestBridge_TelemetryOutOfRangeSectionsAreRejected(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{
			name:    "lamp brightness above range",
			payload: `{"temperature":25,"ph":7,"turbidity":4,"ammonia":0.1,"waterLevel":80,"outputs":{"lampBrightness":255}}`,
			field:   "outputs.lampBrightness",
		},
		{
			name:    "negative lamp brightness",
			payload: `{"temperature":25,"ph":7,"turbidity":4,"ammonia":0.1,"waterLevel":80,"outputs":{"lampBrightness":-1}}`,
			field:   "outputs.lampBrightness",
		},
		{
			name:    "negative feed count",
			payload: `{"temperature":25,"ph":7,"turbidity":4,"ammonia":0.1,"waterLevel":80,"feeder":{"feedCount":-2}}`,
			field:   "feeder.feedCount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, s, b := setupBridge(t)
			ctx := context.Background()
			require.NoError(t, s.Seed(ctx, "tank-1", models.DeviceState{
				Outputs: &models.Outputs{LampBrightness: 40},
			}))
			require.NoError(t, b.Start(ctx, []string{"tank-1"}))

			err := client.deliver(t, "aquarium/tank-1/telemetry", tt.payload)

			var verr *models.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)

			got, err := s.Document("tank-1").ReadOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, &models.Outputs{LampBrightness: 40}, got.Outputs)
			assert.Nil(t, got.Sensors)
		})
	}
}

func TestBridge_FeedStatusHandler(t *testing.T) {
	client, _, b := setupBridge(t)
	var got []FeedStatusMessage
	b.OnFeedStatus(func(m FeedStatusMessage) { got = append(got, m) })
	require.NoError(t, b.Start(context.Background(), nil))

	require.NoError(t, client.deliver(t, "aquarium/feed/status",
		`{"type":"feed_status","deviceId":"tank-1","success":false,"amount":2.5,"timestamp":"2024-03-01T08:00:00Z","error":"jammed"}`))
	// commands echoed on the status topic are ignored
	require.NoError(t, client.deliver(t, "aquarium/feed/status",
		`{"type":"feed_command","timestamp":"2024-03-01T08:00:00Z"}`))
	assert.Error(t, client.deliver(t, "aquarium/feed/status", `{"type":"reboot"}`))

	require.Len(t, got, 1)
	assert.False(t, got[0].Success)
	assert.Equal(t, "jammed", got[0].Error)
	assert.Equal(t, 2.5, *got[0].Amount)
}

func TestBridge_PublishFeedCommand(t *testing.T) {
	client, _, b := setupBridge(t)

	require.NoError(t, b.PublishFeedCommand(context.Background(), "tank-1", 2.5))

	require.Len(t, client.published, 1)
	assert.Equal(t, "aquarium/feed/command", client.published[0].topic)
	var msg FeedCommandMessage
	require.NoError(t, json.Unmarshal(client.published[0].payload, &msg))
	assert.Equal(t, TypeFeedCommand, msg.Type)
	assert.Equal(t, "tank-1", msg.DeviceID)
	assert.Equal(t, 2.5, *msg.Amount)
	assert.Equal(t, "2023-11-14T22:13:20Z", msg.Timestamp)
}

func TestBridge_ScheduleChanged(t *testing.T) {
	client, _, b := setupBridge(t)
	next := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)

	b.ScheduleChanged(context.Background(), "tank-1", models.FeedSchedule{
		Enabled: true, IntervalMinutes: 480, FeedAmount: 2.5, NextFeedTime: &next,
	})

	require.Len(t, client.published, 1)
	assert.Equal(t, "aquarium/feed/schedule", client.published[0].topic)
	parsed, err := ParseFeedMessage(client.published[0].payload)
	require.NoError(t, err)
	msg, ok := parsed.(FeedScheduleMessage)
	require.True(t, ok)
	assert.True(t, msg.Enabled)
	assert.Equal(t, 480, msg.IntervalMinutes)
	assert.Equal(t, "2024-03-01T16:00:00Z", msg.NextFeedTime)
}

func TestBridge_PublishError(t *testing.T) {
	client, _, b := setupBridge(t)
	client.publishErr = errors.New("not connected")

	assert.Error(t, b.PublishFeedCommand(context.Background(), "tank-1", 0))
	b.ScheduleChanged(context.Background(), "tank-1", models.FeedSchedule{})
}

func TestBridge_StopUnsubscribes(t *testing.T) {
	client, _, b := setupBridge(t)
	require.NoError(t, b.Start(context.Background(), []string{"tank-1", "tank-2"}))

	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop())

	assert.ElementsMatch(t, []string{
		"aquarium/tank-1/telemetry",
		"aquarium/tank-2/telemetry",
		"aquarium/feed/status",
	}, client.unsubscribed)
}

func TestParseFeedMessage(t *testing.T) {
	m, err := ParseFeedMessage([]byte(`{"type":"feed_command","amount":1.5,"timestamp":"x"}`))
	require.NoError(t, err)
	cmd, ok := m.(FeedCommandMessage)
	require.True(t, ok)
	assert.Equal(t, 1.5, *cmd.Amount)

	_, err = ParseFeedMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseFeedMessage([]byte(`{"type":"other"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	noAmount := NewFeedCommand("tank-1", 0, time.Unix(0, 0))
	assert.Nil(t, noAmount.Amount)
}
