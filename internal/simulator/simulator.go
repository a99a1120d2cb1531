// Package simulator publishes generated telemetry for a set of devices and
// answers feed commands the way the aquarium firmware does.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"aquarium-monitor/internal/bridge"
	"aquarium-monitor/internal/common/mqtt"

	"go.uber.org/zap"
)

// Client the MQTT operations the simulator uses
type Client interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Unsubscribe(topics ...string) error
}

// Simulator fake device fleet
type Simulator struct {
	client    Client
	generator *Generator
	topics    bridge.Topics
	deviceIDs []string
	interval  time.Duration
	qos       byte
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(client Client, generator *Generator, topics bridge.Topics, deviceIDs []string, interval time.Duration, qos byte, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if generator == nil {
		generator = NewGenerator()
	}
	return &Simulator{
		client:    client,
		generator: generator,
		topics:    topics,
		deviceIDs: deviceIDs,
		interval:  interval,
		qos:       qos,
		logger:    logger,
		now:       time.Now,
	}
}

// Start publishes one reading per device immediately and then every interval
func (s *Simulator) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("simulator interval must be positive, got %s", s.interval)
	}
	if err := s.client.Subscribe(s.topics.FeedCommand, s.qos, s.handleFeedCommand); err != nil {
		return fmt.Errorf("failed to subscribe feed commands: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("Simulator started",
		zap.Strings("device_ids", s.deviceIDs),
		zap.Duration("interval", s.interval),
	)

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.PublishAll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.PublishAll()
			}
		}
	}()
	return nil
}

// Stop ends the publish loop and waits for it
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	if err := s.client.Unsubscribe(s.topics.FeedCommand); err != nil {
		s.logger.Warn("Failed to unsubscribe feed commands", zap.Error(err))
	}
	s.logger.Info("Simulator stopped")
}

// PublishAll publishes one reading for every device
func (s *Simulator) PublishAll() {
	for _, id := range s.deviceIDs {
		if err := s.Publish(id); err != nil {
			s.logger.Error("Failed to publish telemetry", zap.String("device_id", id), zap.Error(err))
		}
	}
}

// Publish publishes one generated reading for deviceID
func (s *Simulator) Publish(deviceID string) error {
	s.mu.Lock()
	sensors := s.generator.Next()
	s.mu.Unlock()

	msg := bridge.TelemetryMessage{
		Sensors:   sensors,
		Timestamp: s.now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.Publish(s.topics.Telemetry(deviceID), s.qos, false, payload)
}

func (s *Simulator) handleFeedCommand(_ string, payload []byte) error {
	msg, err := bridge.ParseFeedMessage(payload)
	if err != nil {
		return err
	}
	cmd, ok := msg.(bridge.FeedCommandMessage)
	if !ok {
		return nil
	}
	deviceID := cmd.DeviceID
	if deviceID == "" && len(s.deviceIDs) > 0 {
		deviceID = s.deviceIDs[0]
	}

	status := bridge.FeedStatusMessage{
		Type:      bridge.TypeFeedStatus,
		DeviceID:  deviceID,
		Success:   true,
		Amount:    cmd.Amount,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	}
	out, err := json.Marshal(status)
	if err != nil {
		return err
	}
	s.logger.Debug("Feed command handled", zap.String("device_id", deviceID))
	return s.client.Publish(s.topics.FeedStatus, s.qos, false, out)
}
