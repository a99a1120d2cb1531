// Package notify fans derived alerts out to a Redis stream and push
// notifications, at most once per cooldown window for each alert kind.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	commonredis "aquarium-monitor/internal/common/redis"
	"aquarium-monitor/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Event one alert notification as written to the stream
type Event struct {
	DeviceID string           `json:"deviceId"`
	Type     models.AlertType `json:"type"`
	Severity models.Severity  `json:"severity"`
	Message  string           `json:"message"`
	RaisedAt time.Time        `json:"raisedAt"`
}

// Options notifier settings
type Options struct {
	Cooldown     time.Duration
	DedupePrefix string
	Stream       string
	StreamMaxLen int64
	PushTokens   []string
}

// Notifier implements monitor.AlertSink
type Notifier struct {
	client *redis.Client
	opts   Options
	push   PushSender
	logger *zap.Logger
	now    func() time.Time
}

// NewNotifier creates a Notifier; push may be nil
func NewNotifier(client *redis.Client, opts Options, push PushSender, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DedupePrefix == "" {
		opts.DedupePrefix = "aquarium:alert:sent:"
	}
	if opts.Stream == "" {
		opts.Stream = "aquarium:alerts:stream"
	}
	return &Notifier{
		client: client,
		opts:   opts,
		push:   push,
		logger: logger,
		now:    time.Now,
	}
}

// AlertsRaised notifies every alert; failures are logged
func (n *Notifier) AlertsRaised(ctx context.Context, deviceID string, alerts []models.Alert) {
	for _, a := range alerts {
		if _, err := n.Notify(ctx, deviceID, a); err != nil {
			n.logger.Error("Failed to notify alert",
				zap.String("device_id", deviceID),
				zap.String("type", string(a.Type)),
				zap.Error(err),
			)
		}
	}
}

// Notify sends a unless the same (device, type, severity) was sent within the
// cooldown. It reports whether the alert was sent.
func (n *Notifier) Notify(ctx context.Context, deviceID string, a models.Alert) (bool, error) {
	key := n.dedupeKey(deviceID, a)
	if n.opts.Cooldown > 0 {
		acquired, err := n.client.SetNX(ctx, key, n.now().Unix(), n.opts.Cooldown).Result()
		if err != nil {
			return false, fmt.Errorf("failed to check alert cooldown: %w", err)
		}
		if !acquired {
			n.logger.Debug("Alert suppressed by cooldown", zap.String("key", key))
			return false, nil
		}
	}

	event := Event{
		DeviceID: deviceID,
		Type:     a.Type,
		Severity: a.Severity,
		Message:  a.Message,
		RaisedAt: n.now(),
	}
	if _, err := commonredis.PublishJSONToStream(ctx, n.client, n.opts.Stream, n.opts.StreamMaxLen, event); err != nil {
		return false, fmt.Errorf("failed to publish alert: %w", err)
	}

	if n.push != nil && len(n.opts.PushTokens) > 0 {
		msg := PushMessage{
			To:    n.opts.PushTokens,
			Title: fmt.Sprintf("Aquarium Alert - %s", strings.ToUpper(string(a.Severity))),
			Body:  a.Message,
			Data: map[string]interface{}{
				"deviceId": deviceID,
				"type":     string(a.Type),
				"severity": string(a.Severity),
			},
			Sound:    "default",
			Priority: pushPriority(a.Severity),
		}
		if err := n.push.Send(ctx, msg); err != nil {
			return true, fmt.Errorf("alert published but push failed: %w", err)
		}
	}

	n.logger.Info("Alert notified",
		zap.String("device_id", deviceID),
		zap.String("type", string(a.Type)),
		zap.String("severity", string(a.Severity)),
	)
	return true, nil
}

// Recent latest notified events across all devices, newest first
func (n *Notifier) Recent(ctx context.Context, count int64) ([]Event, error) {
	msgs, err := commonredis.ReadLatestFromStream(ctx, n.client, n.opts.Stream, count)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			n.logger.Warn("Skipping malformed alert event", zap.String("id", m.ID), zap.Error(err))
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func (n *Notifier) dedupeKey(deviceID string, a models.Alert) string {
	return fmt.Sprintf("%s%s:%s:%s", n.opts.DedupePrefix, deviceID, a.Type, a.Severity)
}

func pushPriority(s models.Severity) string {
	if s == models.SeverityCritical {
		return "high"
	}
	return "default"
}
