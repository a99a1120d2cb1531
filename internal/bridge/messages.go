package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aquarium-monitor/internal/models"
)

const (
	TypeFeedCommand  = "feed_command"
	TypeFeedStatus   = "feed_status"
	TypeFeedSchedule = "feed_schedule"
)

// ErrUnknownMessage payload is JSON but not a feed message
var ErrUnknownMessage = errors.New("unknown feed message type")

// TelemetryMessage device telemetry; sensor fields sit at the top level
type TelemetryMessage struct {
	models.Sensors
	Timestamp int64           `json:"timestamp,omitempty"` // epoch millis
	Outputs   *models.Outputs `json:"outputs,omitempty"`
	Feeder    *models.Feeder  `json:"feeder,omitempty"`
}

// FeedCommandMessage asks the feeder to dispense
type FeedCommandMessage struct {
	Type      string   `json:"type"`
	DeviceID  string   `json:"deviceId,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// FeedStatusMessage feeder result reported by the device
type FeedStatusMessage struct {
	Type      string   `json:"type"`
	DeviceID  string   `json:"deviceId,omitempty"`
	Success   bool     `json:"success"`
	Amount    *float64 `json:"amount,omitempty"`
	Timestamp string   `json:"timestamp"`
	Error     string   `json:"error,omitempty"`
}

// FeedScheduleMessage current schedule pushed to the device
type FeedScheduleMessage struct {
	Type            string  `json:"type"`
	DeviceID        string  `json:"deviceId,omitempty"`
	Enabled         bool    `json:"enabled"`
	IntervalMinutes int     `json:"intervalMinutes"`
	Amount          float64 `json:"amount"`
	NextFeedTime    string  `json:"nextFeedTime,omitempty"`
}

// NewFeedCommand amount <= 0 leaves the amount to the device
func NewFeedCommand(deviceID string, amount float64, now time.Time) FeedCommandMessage {
	msg := FeedCommandMessage{
		Type:      TypeFeedCommand,
		DeviceID:  deviceID,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
	if amount > 0 {
		msg.Amount = &amount
	}
	return msg
}

// NewFeedSchedule schedule message for deviceID
func NewFeedSchedule(deviceID string, s models.FeedSchedule) FeedScheduleMessage {
	msg := FeedScheduleMessage{
		Type:            TypeFeedSchedule,
		DeviceID:        deviceID,
		Enabled:         s.Enabled,
		IntervalMinutes: s.IntervalMinutes,
		Amount:          s.FeedAmount,
	}
	if s.NextFeedTime != nil {
		msg.NextFeedTime = s.NextFeedTime.UTC().Format(time.RFC3339Nano)
	}
	return msg
}

// ParseFeedMessage decodes one of the three feed message kinds
func ParseFeedMessage(payload []byte) (interface{}, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("failed to parse feed message: %w", err)
	}

	switch head.Type {
	case TypeFeedCommand:
		var m FeedCommandMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", head.Type, err)
		}
		return m, nil
	case TypeFeedStatus:
		var m FeedStatusMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", head.Type, err)
		}
		return m, nil
	case TypeFeedSchedule:
		var m FeedScheduleMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", head.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, head.Type)
	}
}
