package models

import (
	"time"
)

// FeedType how a feed was started
type FeedType string

const (
	FeedTypeAutomatic FeedType = "automatic"
	FeedTypeManual    FeedType = "manual"
)

// FeedSchedule local feeding schedule
type FeedSchedule struct {
	Name            string     `json:"name"`
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"intervalMinutes"`
	FeedAmount      float64    `json:"feedAmount"` // grams
	NextFeedTime    *time.Time `json:"nextFeedTime"`
	LastFeedTime    *time.Time `json:"lastFeedTime"`
}

// Interval schedule interval as a duration
func (s FeedSchedule) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// FeedHistoryEntry one feed attempt
type FeedHistoryEntry struct {
	ID        string    `json:"id" db:"id"`
	DeviceID  string    `json:"deviceId,omitempty" db:"device_id"`
	Timestamp time.Time `json:"timestamp" db:"fed_at"`
	Amount    float64   `json:"amount" db:"amount"`
	Type      FeedType  `json:"type" db:"feed_type"`
	Success   bool      `json:"success" db:"success"`
	Error     string    `json:"error,omitempty" db:"error"`
}

// SensorReading persisted telemetry sample
type SensorReading struct {
	DeviceID   string    `json:"deviceId" db:"device_id"`
	RecordedAt time.Time `json:"recordedAt" db:"recorded_at"`
	Sensors    Sensors   `json:"sensors"`
}
