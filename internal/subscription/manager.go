// Package subscription owns the realtime listeners opened on behalf of one
// consumer and closes them together.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"aquarium-monitor/internal/models"
	"aquarium-monitor/internal/store"

	"go.uber.org/zap"
)

// ErrClosed TeardownAll already ran
var ErrClosed = errors.New("subscription manager closed")

// Kind the slice of the device document a topic delivers
type Kind string

const (
	KindDevice   Kind = "device"
	KindSensors  Kind = "sensors"
	KindControls Kind = "controls"
	KindFeeder   Kind = "feeder"
)

// Topic logical listener key, e.g. "sensors:tank-1"
type Topic struct {
	Kind     Kind
	DeviceID string
}

func (t Topic) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.DeviceID)
}

// Source opens a raw listener on one device document
type Source interface {
	Subscribe(ctx context.Context, onSnapshot store.SnapshotFunc, opts ...store.SubscribeOption) (store.Unsubscribe, error)
}

// SourceFunc resolves the document for a device
type SourceFunc func(deviceID string) Source

// Disposer closes one subscription; extra calls are no-ops
type Disposer func()

type entry struct {
	topic  Topic
	once   sync.Once
	closed atomic.Bool
	unsub  store.Unsubscribe
}

func (e *entry) dispose() {
	e.once.Do(func() {
		e.closed.Store(true)
		if e.unsub != nil {
			e.unsub()
		}
	})
}

// Manager at most one listener per topic for one consumer
type Manager struct {
	source SourceFunc
	logger *zap.Logger

	mu      sync.Mutex
	entries map[Topic]*entry
	closed  bool
}

// NewManager creates a Manager
func NewManager(source SourceFunc, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		source:  source,
		logger:  logger,
		entries: make(map[Topic]*entry),
	}
}

// SubscribeDevice delivers full snapshots
func (m *Manager) SubscribeDevice(ctx context.Context, deviceID string, fn func(models.DeviceState)) (Disposer, error) {
	return m.subscribe(ctx, Topic{Kind: KindDevice, DeviceID: deviceID}, fn)
}

// SubscribeSensors delivers the sensors section when present
func (m *Manager) SubscribeSensors(ctx context.Context, deviceID string, fn func(models.Sensors)) (Disposer, error) {
	return m.subscribe(ctx, Topic{Kind: KindSensors, DeviceID: deviceID}, func(s models.DeviceState) {
		if s.Sensors != nil {
			fn(*s.Sensors)
		}
	})
}

// SubscribeControls delivers the controls section when present
func (m *Manager) SubscribeControls(ctx context.Context, deviceID string, fn func(models.Controls)) (Disposer, error) {
	return m.subscribe(ctx, Topic{Kind: KindControls, DeviceID: deviceID}, func(s models.DeviceState) {
		if s.Controls != nil {
			fn(*s.Controls)
		}
	})
}

// SubscribeFeeder delivers the feeder section when present
func (m *Manager) SubscribeFeeder(ctx context.Context, deviceID string, fn func(models.Feeder)) (Disposer, error) {
	return m.subscribe(ctx, Topic{Kind: KindFeeder, DeviceID: deviceID}, func(s models.DeviceState) {
		if s.Feeder != nil {
			fn(*s.Feeder)
		}
	})
}

// subscribe replaces any listener already open for topic
func (m *Manager) subscribe(ctx context.Context, topic Topic, fn func(models.DeviceState)) (Disposer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	if prev, ok := m.entries[topic]; ok {
		prev.dispose()
		delete(m.entries, topic)
		m.logger.Debug("Replaced subscription", zap.String("topic", topic.String()))
	}

	e := &entry{topic: topic}
	// a callback already past this check when the entry is disposed still
	// completes; nothing is delivered after that
	unsub, err := m.source(topic.DeviceID).Subscribe(ctx, func(s models.DeviceState) {
		if e.closed.Load() {
			return
		}
		fn(s)
	}, store.WithErrorHandler(func(err error) {
		m.logger.Warn("Subscription read failed",
			zap.String("topic", topic.String()),
			zap.Error(err),
		)
	}))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	e.unsub = unsub
	m.entries[topic] = e

	return func() {
		e.dispose()
		m.mu.Lock()
		if m.entries[topic] == e {
			delete(m.entries, topic)
		}
		m.mu.Unlock()
	}, nil
}

// Active reports whether topic has an open listener
func (m *Manager) Active(topic Topic) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[topic]
	return ok
}

// Len number of open listeners
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// TeardownAll closes every listener. Later calls do nothing and later
// subscriptions fail with ErrClosed.
func (m *Manager) TeardownAll() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := m.entries
	m.entries = make(map[Topic]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.dispose()
	}
	m.logger.Debug("Tore down subscriptions", zap.Int("count", len(entries)))
}
