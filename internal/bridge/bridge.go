// Package bridge links devices over MQTT: telemetry flows into the device
// documents, feed commands and schedules flow out.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"aquarium-monitor/internal/common/mqtt"
	"aquarium-monitor/internal/models"

	"go.uber.org/zap"
)

// Client the MQTT operations the bridge uses
type Client interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Unsubscribe(topics ...string) error
}

// Writer merge-writes one device document
type Writer interface {
	MergeWrite(ctx context.Context, patch models.Patch) error
}

// WriterFunc resolves the document writer for a device
type WriterFunc func(deviceID string) Writer

// Topics MQTT topic layout
type Topics struct {
	TelemetryFormat string // "aquarium/%s/telemetry"
	FeedCommand     string
	FeedSchedule    string
	FeedStatus      string
}

// DefaultTopics topic layout used by the aquarium firmware
func DefaultTopics() Topics {
	return Topics{
		TelemetryFormat: "aquarium/%s/telemetry",
		FeedCommand:     "aquarium/feed/command",
		FeedSchedule:    "aquarium/feed/schedule",
		FeedStatus:      "aquarium/feed/status",
	}
}

// Telemetry topic for deviceID
func (t Topics) Telemetry(deviceID string) string {
	return fmt.Sprintf(t.TelemetryFormat, deviceID)
}

// StatusHandler receives feed status reports
type StatusHandler func(FeedStatusMessage)

// Bridge MQTT device link
type Bridge struct {
	client  Client
	writers WriterFunc
	topics  Topics
	qos     byte
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	subscribed []string
	onStatus   StatusHandler
}

// New creates a Bridge
func New(client Client, writers WriterFunc, topics Topics, qos byte, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		client:  client,
		writers: writers,
		topics:  topics,
		qos:     qos,
		logger:  logger,
		now:     time.Now,
	}
}

// OnFeedStatus registers the feed status handler
func (b *Bridge) OnFeedStatus(h StatusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStatus = h
}

// Start subscribes the telemetry topic of every device and the feed status topic
func (b *Bridge) Start(ctx context.Context, deviceIDs []string) error {
	for _, id := range deviceIDs {
		deviceID := id
		topic := b.topics.Telemetry(deviceID)
		if err := b.client.Subscribe(topic, b.qos, func(_ string, payload []byte) error {
			return b.HandleTelemetry(ctx, deviceID, payload)
		}); err != nil {
			return err
		}
		b.track(topic)
	}

	if err := b.client.Subscribe(b.topics.FeedStatus, b.qos, b.handleStatus); err != nil {
		return err
	}
	b.track(b.topics.FeedStatus)

	b.logger.Info("MQTT bridge started",
		zap.Strings("device_ids", deviceIDs),
		zap.String("status_topic", b.topics.FeedStatus),
	)
	return nil
}

func (b *Bridge) track(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, topic)
}

// Stop unsubscribes everything Start subscribed
func (b *Bridge) Stop() error {
	b.mu.Lock()
	topics := b.subscribed
	b.subscribed = nil
	b.mu.Unlock()

	if len(topics) == 0 {
		return nil
	}
	return b.client.Unsubscribe(topics...)
}

// telemetryPayload decodes a TelemetryMessage with presence tracking so a
// payload missing core readings is rejected rather than stored as zeros
type telemetryPayload struct {
	Temperature  *float64        `json:"temperature"`
	PH           *float64        `json:"ph"`
	Turbidity    *float64        `json:"turbidity"`
	Ammonia      *float64        `json:"ammonia"`
	UV           *float64        `json:"uv"`
	WaterLevel   *int            `json:"waterLevel"`
	WaterLevelCm *float64        `json:"waterLevelCm"`
	FoodEmpty    *bool           `json:"foodEmpty"`
	Timestamp    int64           `json:"timestamp"`
	Outputs      *models.Outputs `json:"outputs"`
	Feeder       *models.Feeder  `json:"feeder"`
}

func (p telemetryPayload) sensors() (models.Sensors, error) {
	required := []struct {
		name    string
		present bool
	}{
		{"temperature", p.Temperature != nil},
		{"ph", p.PH != nil},
		{"turbidity", p.Turbidity != nil},
		{"ammonia", p.Ammonia != nil},
		{"waterLevel", p.WaterLevel != nil},
	}
	for _, f := range required {
		if !f.present {
			return models.Sensors{}, &models.ValidationError{Field: "telemetry." + f.name, Reason: "missing"}
		}
	}

	s := models.Sensors{
		Temperature: *p.Temperature,
		PH:          *p.PH,
		Turbidity:   *p.Turbidity,
		Ammonia:     *p.Ammonia,
		WaterLevel:  *p.WaterLevel,
	}
	if p.UV != nil {
		s.UV = *p.UV
	}
	if p.WaterLevelCm != nil {
		s.WaterLevelCm = *p.WaterLevelCm
	}
	if p.FoodEmpty != nil {
		s.FoodEmpty = *p.FoodEmpty
	}
	return s, nil
}

// HandleTelemetry merge-writes sensors and lastUpdate, plus outputs and
// feeder when the device reports them. Nothing is written unless the whole
// payload passes validation.
func (b *Bridge) HandleTelemetry(ctx context.Context, deviceID string, payload []byte) error {
	var msg telemetryPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return &models.ValidationError{Field: "telemetry", Reason: "malformed payload", Err: err}
	}
	sensors, err := msg.sensors()
	if err != nil {
		return err
	}

	ts := msg.Timestamp
	if ts <= 0 {
		ts = b.now().UnixMilli()
	}
	patch := models.Patch{
		Sensors:    &sensors,
		Outputs:    msg.Outputs,
		Feeder:     msg.Feeder,
		LastUpdate: &ts,
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	if err := b.writers(deviceID).MergeWrite(ctx, patch); err != nil {
		return fmt.Errorf("failed to store telemetry for %s: %w", deviceID, err)
	}

	b.logger.Debug("Telemetry stored",
		zap.String("device_id", deviceID),
		zap.Int64("last_update", ts),
	)
	return nil
}

func (b *Bridge) handleStatus(_ string, payload []byte) error {
	msg, err := ParseFeedMessage(payload)
	if err != nil {
		return err
	}
	status, ok := msg.(FeedStatusMessage)
	if !ok {
		return nil
	}

	b.mu.Lock()
	h := b.onStatus
	b.mu.Unlock()

	b.logger.Info("Feed status received",
		zap.String("device_id", status.DeviceID),
		zap.Bool("success", status.Success),
		zap.String("error", status.Error),
	)
	if h != nil {
		h(status)
	}
	return nil
}

// PublishFeedCommand sends a feed_command for deviceID
func (b *Bridge) PublishFeedCommand(_ context.Context, deviceID string, amount float64) error {
	return b.publish(b.topics.FeedCommand, NewFeedCommand(deviceID, amount, b.now()))
}

// ScheduleChanged publishes the schedule; implements feeder.ScheduleObserver
func (b *Bridge) ScheduleChanged(_ context.Context, deviceID string, schedule models.FeedSchedule) {
	if err := b.publish(b.topics.FeedSchedule, NewFeedSchedule(deviceID, schedule)); err != nil {
		b.logger.Error("Failed to publish feed schedule",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
}

func (b *Bridge) publish(topic string, msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.client.Publish(topic, b.qos, false, payload)
}
