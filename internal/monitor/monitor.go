// Package monitor keeps the latest state of every watched device and derives
// alerts from each new snapshot.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"aquarium-monitor/internal/alert"
	"aquarium-monitor/internal/models"
	"aquarium-monitor/internal/subscription"

	"go.uber.org/zap"
)

// ErrUnknownDevice no snapshot has been received for the device
var ErrUnknownDevice = errors.New("no state for device")

// AlertSink receives the non-empty alert set of every snapshot
type AlertSink interface {
	AlertsRaised(ctx context.Context, deviceID string, alerts []models.Alert)
}

// TelemetrySink receives each new sensor reading once
type TelemetrySink interface {
	RecordTelemetry(ctx context.Context, deviceID string, sensors models.Sensors, at time.Time) error
}

// Option configures a Monitor
type Option func(*Monitor)

// WithStaleAfter sets the staleness threshold; 0 disables it
func WithStaleAfter(d time.Duration) Option {
	return func(m *Monitor) { m.staleAfter = d }
}

// WithAlertSink forwards alerts
func WithAlertSink(s AlertSink) Option {
	return func(m *Monitor) { m.alertSinks = append(m.alertSinks, s) }
}

// WithTelemetrySink forwards sensor readings
func WithTelemetrySink(s TelemetrySink) Option {
	return func(m *Monitor) { m.telemetrySinks = append(m.telemetrySinks, s) }
}

// WithNow replaces time.Now
func WithNow(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

type deviceEntry struct {
	state        models.DeviceState
	alerts       []models.Alert
	lastRecorded int64
}

// Monitor latest device snapshots
type Monitor struct {
	subs      *subscription.Manager
	evaluator *alert.Evaluator
	logger    *zap.Logger

	staleAfter     time.Duration
	now            func() time.Time
	alertSinks     []AlertSink
	telemetrySinks []TelemetrySink

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	devices map[string]*deviceEntry
}

// New creates a Monitor. The subscription manager belongs to the monitor and
// is torn down by Close.
func New(subs *subscription.Manager, evaluator *alert.Evaluator, logger *zap.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if evaluator == nil {
		evaluator = alert.NewEvaluator()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		subs:      subs,
		evaluator: evaluator,
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		devices:   make(map[string]*deviceEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Watch starts following deviceID; watching again replaces the listener
func (m *Monitor) Watch(ctx context.Context, deviceID string) error {
	_, err := m.subs.SubscribeDevice(ctx, deviceID, func(state models.DeviceState) {
		m.Handle(deviceID, state)
	})
	if err != nil {
		return err
	}
	m.logger.Info("Watching device", zap.String("device_id", deviceID))
	return nil
}

// Handle applies one snapshot. Exposed for callers that already hold a snapshot.
func (m *Monitor) Handle(deviceID string, state models.DeviceState) {
	var alerts []models.Alert
	if state.Sensors != nil {
		alerts = m.evaluator.Evaluate(*state.Sensors)
	}

	m.mu.Lock()
	e, ok := m.devices[deviceID]
	if !ok {
		e = &deviceEntry{}
		m.devices[deviceID] = e
	}
	e.state = state
	e.alerts = alerts
	record := state.Sensors != nil && state.LastUpdate > 0 && state.LastUpdate != e.lastRecorded
	if record {
		e.lastRecorded = state.LastUpdate
	}
	m.mu.Unlock()

	if len(alerts) > 0 {
		m.logger.Debug("Alerts derived",
			zap.String("device_id", deviceID),
			zap.Int("alert_count", len(alerts)),
		)
		for _, s := range m.alertSinks {
			s.AlertsRaised(m.ctx, deviceID, alerts)
		}
	}

	if record {
		at := time.UnixMilli(state.LastUpdate)
		for _, s := range m.telemetrySinks {
			if err := s.RecordTelemetry(m.ctx, deviceID, *state.Sensors, at); err != nil {
				m.logger.Error("Failed to record telemetry",
					zap.String("device_id", deviceID),
					zap.Error(err),
				)
			}
		}
	}
}

// Display derived state for deviceID
func (m *Monitor) Display(deviceID string) (DisplayState, error) {
	m.mu.RLock()
	e, ok := m.devices[deviceID]
	if !ok {
		m.mu.RUnlock()
		return DisplayState{}, ErrUnknownDevice
	}
	state := e.state
	alerts := append([]models.Alert(nil), e.alerts...)
	m.mu.RUnlock()

	return Derive(deviceID, state, alerts, m.now(), m.staleAfter), nil
}

// Alerts latest alert set for deviceID
func (m *Monitor) Alerts(deviceID string) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.devices[deviceID]
	if !ok {
		return nil, ErrUnknownDevice
	}
	return append([]models.Alert{}, e.alerts...), nil
}

// Devices ids with at least one snapshot
func (m *Monitor) Devices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every listener
func (m *Monitor) Close() {
	m.subs.TeardownAll()
	m.cancel()
}
