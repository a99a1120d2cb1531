package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aquarium-monitor/internal/alert"
	"aquarium-monitor/internal/control"
	"aquarium-monitor/internal/feeder"
	"aquarium-monitor/internal/models"
	"aquarium-monitor/internal/monitor"
	"aquarium-monitor/internal/store"
	"aquarium-monitor/internal/subscription"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type testDevices struct {
	controllers map[string]Controller
	schedulers  map[string]FeedScheduler
}

func (d *testDevices) Controller(deviceID string) (Controller, error) {
	c, ok := d.controllers[deviceID]
	if !ok {
		return nil, ErrUnknownDevice
	}
	return c, nil
}

func (d *testDevices) Scheduler(deviceID string) (FeedScheduler, error) {
	s, ok := d.schedulers[deviceID]
	if !ok {
		return nil, ErrUnknownDevice
	}
	return s, nil
}

type fakeTelemetry struct {
	since time.Time
	limit int
}

func (f *fakeTelemetry) ListSince(_ context.Context, deviceID string, since time.Time, limit int) ([]models.SensorReading, error) {
	f.since, f.limit = since, limit
	return []models.SensorReading{{DeviceID: deviceID, RecordedAt: since, Sensors: models.Sensors{Temperature: 25}}}, nil
}

type testEnv struct {
	router  *Router
	store   *store.Store
	monitor *monitor.Monitor
	sched   *feeder.Scheduler
	feeds   []float64
}

func setupTestRouter(t *testing.T) *testEnv {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{store: store.New(client, store.DefaultOptions(), zap.NewNop())}
	doc := env.store.Document("tank-1")
	facade := control.NewFacade(doc, zap.NewNop())
	env.sched = feeder.NewScheduler("tank-1", models.FeedSchedule{}, func(ctx context.Context, amount float64, _ models.FeedType) error {
		env.feeds = append(env.feeds, amount)
		return facade.TriggerFeed(ctx)
	}, zap.NewNop())
	t.Cleanup(env.sched.Close)

	env.monitor = monitor.New(subscription.NewManager(nil, zap.NewNop()), alert.NewEvaluator(), zap.NewNop())

	devices := &testDevices{
		controllers: map[string]Controller{"tank-1": facade},
		schedulers:  map[string]FeedScheduler{"tank-1": env.sched},
	}
	h := NewDeviceHandler(env.monitor, devices, nil, &fakeTelemetry{}, nil, zap.NewNop())
	env.router = NewRouter(zap.NewNop())
	env.router.RegisterDeviceRoutes(h)
	return env
}

func seedTank(t *testing.T, env *testEnv) models.DeviceState {
	state := models.DeviceState{
		Sensors:    &models.Sensors{Temperature: 25, PH: 5.3, Turbidity: 5, Ammonia: 0.1, WaterLevel: 80},
		Controls:   &models.Controls{LampBrightness: 40},
		LastUpdate: time.Now().UnixMilli(),
	}
	require.NoError(t, env.store.Seed(context.Background(), "tank-1", state))
	return state
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) Result[T] {
	var res Result[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestRouter_Health(t *testing.T) {
	env := setupTestRouter(t)

	rec := do(t, env.router, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, decode[map[string]string](t, rec).Code)
}

func TestRouter_UnknownRouteAndMethod(t *testing.T) {
	env := setupTestRouter(t)

	assert.Equal(t, http.StatusNotFound, do(t, env.router, http.MethodGet, "/api/v1/devices/tank-1/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, env.router, http.MethodGet, "/api/v1/devices/", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/state", "").Code)
}

func TestDeviceHandler_GetState(t *testing.T) {
	env := setupTestRouter(t)

	rec := do(t, env.router, http.MethodGet, "/api/v1/devices/tank-1/state", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	state := seedTank(t, env)
	env.monitor.Handle("tank-1", state)

	rec = do(t, env.router, http.MethodGet, "/api/v1/devices/tank-1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[monitor.DisplayState](t, rec)
	assert.Equal(t, "tank-1", res.Result.DeviceID)
	assert.True(t, res.Result.LightOn)
	assert.Equal(t, 40, res.Result.LampBrightness)
	require.Len(t, res.Result.Alerts, 1)
	assert.Equal(t, models.AlertTypePH, res.Result.Alerts[0].Type)

	rec = do(t, env.router, http.MethodGet, "/api/v1/devices/tank-1/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Alert](t, rec).Result, 1)
}

func TestDeviceHandler_TogglePump(t *testing.T) {
	env := setupTestRouter(t)
	ctx := context.Background()

	rec := do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/controls/pump", `{"pump":1,"on":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	seedTank(t, env)

	rec = do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/controls/pump", `{"pump":1,"on":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := env.store.Document("tank-1").ReadOnce(ctx)
	require.NoError(t, err)
	assert.True(t, got.Controls.Pump1)
	assert.Equal(t, 40, got.Controls.LampBrightness)

	rec = do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/controls/pump", `{"pump":3,"on":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/controls/pump", `{"pump":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, env.router, http.MethodPost, "/api/v1/devices/tank-9/controls/pump", `{"pump":1,"on":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceHandler_SetLampClamps(t *testing.T) {
	env := setupTestRouter(t)
	seedTank(t, env)

	rec := do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/controls/lamp", `{"brightness":150}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := env.store.Document("tank-1").ReadOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, got.Controls.LampBrightness)

	rec = do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/controls/light", `{"on":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err = env.store.Document("tank-1").ReadOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Controls.LampBrightness)
}

func TestDeviceHandler_FeedAndHistory(t *testing.T) {
	env := setupTestRouter(t)
	seedTank(t, env)

	rec := do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/feed", `{"amount":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode[models.FeedHistoryEntry](t, rec).Result
	assert.True(t, entry.Success)
	assert.Equal(t, models.FeedTypeManual, entry.Type)
	assert.Equal(t, []float64{3}, env.feeds)

	got, err := env.store.Document("tank-1").ReadOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Controls.FeedNow)

	rec = do(t, env.router, http.MethodGet, "/api/v1/devices/tank-1/feed/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]models.FeedHistoryEntry](t, rec).Result
	require.Len(t, history, 1)
	assert.Equal(t, entry.ID, history[0].ID)

	rec = do(t, env.router, http.MethodGet, "/api/v1/devices/tank-1/feed/history/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "feed-history-tank-1.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	id, err := f.GetCellValue("Feed History", "A2")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, id)

	rec = do(t, env.router, http.MethodDelete, "/api/v1/devices/tank-1/feed/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.sched.History())
}

func TestDeviceHandler_FeedWithoutStateFails(t *testing.T) {
	env := setupTestRouter(t)

	rec := do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/feed", `{"amount":1}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	res := decode[models.FeedHistoryEntry](t, rec)
	assert.Equal(t, ResultError, res.Code)
	assert.False(t, res.Result.Success)
	assert.NotEmpty(t, res.Result.Error)
}

func TestDeviceHandler_Schedule(t *testing.T) {
	env := setupTestRouter(t)

	rec := do(t, env.router, http.MethodPut, "/api/v1/devices/tank-1/feed/schedule",
		`{"name":"Daily","enabled":true,"intervalMinutes":480,"feedAmount":2.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[scheduleView](t, rec).Result
	assert.True(t, view.Enabled)
	assert.Equal(t, feeder.StateArmed, view.State)
	require.NotNil(t, view.NextFeedTime)

	rec = do(t, env.router, http.MethodGet, "/api/v1/devices/tank-1/feed/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 480, decode[scheduleView](t, rec).Result.IntervalMinutes)

	rec = do(t, env.router, http.MethodPost, "/api/v1/devices/tank-1/feed/reschedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, feeder.StateArmed, decode[scheduleView](t, rec).Result.State)

	rec = do(t, env.router, http.MethodPut, "/api/v1/devices/tank-1/feed/schedule", `{"enabled":true,"intervalMinutes":0,"feedAmount":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, env.router, http.MethodPut, "/api/v1/devices/tank-1/feed/schedule", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[scheduleView](t, rec).Result
	assert.False(t, view.Enabled)
	assert.Equal(t, feeder.StateIdle, view.State)
}

func TestDeviceHandler_Telemetry(t *testing.T) {
	env := setupTestRouter(t)

	rec := do(t, env.router, http.MethodGet, "/api/v1/devices/tank-1/telemetry?since=2h&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	readings := decode[[]models.SensorReading](t, rec).Result
	require.Len(t, readings, 1)
	assert.Equal(t, "tank-1", readings[0].DeviceID)

	rec = do(t, env.router, http.MethodGet, "/api/v1/devices/tank-1/telemetry?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceHandler_RecentAlertsWithoutFeed(t *testing.T) {
	env := setupTestRouter(t)

	rec := do(t, env.router, http.MethodGet, "/api/v1/alerts/recent", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"result":[]`))
}

func TestDeviceHandler_WriteErrorMapping(t *testing.T) {
	h := NewDeviceHandler(nil, nil, nil, nil, nil, nil)
	cases := []struct {
		err  error
		want int
	}{
		{monitor.ErrUnknownDevice, http.StatusNotFound},
		{control.ErrNoCurrentState, http.StatusConflict},
		{feeder.ErrFeedInProgress, http.StatusConflict},
		{feeder.ErrInvalidSchedule, http.StatusBadRequest},
		{&models.ValidationError{Field: "controls.lampBrightness", Reason: "must be within [0,100], got 150"}, http.StatusBadRequest},
		{fmt.Errorf("failed to store telemetry for tank-1: %w", &models.ValidationError{Field: "telemetry.ph", Reason: "missing"}), http.StatusBadRequest},
		{&store.ConnectivityError{Op: "hgetall", Err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.writeError(rec, "tank-1", tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}
