// Package feeder runs the feeding schedule for one device.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aquarium-monitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State observable scheduler state
type State string

const (
	StateIdle    State = "idle"
	StateArmed   State = "armed"
	StateFeeding State = "feeding"
)

var (
	// ErrFeedInProgress a feed is already running
	ErrFeedInProgress = errors.New("feed already in progress")
	// ErrInvalidSchedule interval or amount out of range
	ErrInvalidSchedule = errors.New("invalid feed schedule")
	// ErrFeedFailed the feed operation returned an error
	ErrFeedFailed = errors.New("feed operation failed")
	// ErrClosed the scheduler was closed
	ErrClosed = errors.New("scheduler closed")
)

// FeedFunc performs one feed against the device
type FeedFunc func(ctx context.Context, amount float64, feedType models.FeedType) error

// HistoryRecorder persists history entries
type HistoryRecorder interface {
	RecordFeed(ctx context.Context, entry models.FeedHistoryEntry) error
}

// ScheduleObserver is told about every schedule change
type ScheduleObserver interface {
	ScheduleChanged(ctx context.Context, deviceID string, schedule models.FeedSchedule)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithHistoryCapacity bounds the in-memory history
func WithHistoryCapacity(n int) Option {
	return func(s *Scheduler) { s.history = newHistory(n) }
}

// WithHistoryRecorder persists every entry after it is added
func WithHistoryRecorder(r HistoryRecorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithScheduleObserver registers an observer for schedule changes
func WithScheduleObserver(o ScheduleObserver) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// Scheduler Idle/Armed/Feeding state machine. All transitions are serialized
// by mu; the feed itself runs outside the lock.
type Scheduler struct {
	deviceID string
	feed     FeedFunc
	clock    Clock
	logger   *zap.Logger

	recorder  HistoryRecorder
	observers []ScheduleObserver

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	schedule models.FeedSchedule
	feeding  bool
	closed   bool
	timer    Timer
	gen      uint64
	history  *history
}

// NewScheduler creates a scheduler with schedule as its initial (not yet
// armed) configuration. Call SetSchedule to arm it.
func NewScheduler(deviceID string, schedule models.FeedSchedule, feed FeedFunc, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		deviceID: deviceID,
		feed:     feed,
		clock:    RealClock(),
		logger:   logger.With(zap.String("device_id", deviceID)),
		ctx:      ctx,
		cancel:   cancel,
		history:  newHistory(DefaultHistoryCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}

	schedule.Enabled = false
	schedule.NextFeedTime = nil
	s.schedule = schedule
	return s
}

// DeviceID the device this scheduler feeds
func (s *Scheduler) DeviceID() string {
	return s.deviceID
}

// State current state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Scheduler) stateLocked() State {
	switch {
	case s.feeding:
		return StateFeeding
	case s.schedule.Enabled && s.schedule.NextFeedTime != nil:
		return StateArmed
	default:
		return StateIdle
	}
}

// Schedule copy of the current schedule
func (s *Scheduler) Schedule() models.FeedSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySchedule(s.schedule)
}

// History newest first
func (s *Scheduler) History() []models.FeedHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.list()
}

// ClearHistory drops the in-memory history
func (s *Scheduler) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.clear()
}

// SetSchedule replaces interval, amount and name. When enabled the next feed
// is armed at now + interval; a pending timer is cancelled first.
func (s *Scheduler) SetSchedule(sched models.FeedSchedule) (models.FeedSchedule, error) {
	if sched.IntervalMinutes <= 0 {
		return models.FeedSchedule{}, fmt.Errorf("%w: intervalMinutes must be > 0, got %d", ErrInvalidSchedule, sched.IntervalMinutes)
	}
	if sched.FeedAmount <= 0 {
		return models.FeedSchedule{}, fmt.Errorf("%w: feedAmount must be > 0, got %v", ErrInvalidSchedule, sched.FeedAmount)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.FeedSchedule{}, ErrClosed
	}
	s.schedule.Name = sched.Name
	s.schedule.Enabled = sched.Enabled
	s.schedule.IntervalMinutes = sched.IntervalMinutes
	s.schedule.FeedAmount = sched.FeedAmount

	if !s.feeding {
		if sched.Enabled {
			s.armLocked(s.clock.Now().Add(s.schedule.Interval()))
		} else {
			s.disarmLocked()
		}
	}
	out := copySchedule(s.schedule)
	s.mu.Unlock()

	s.logger.Info("Feed schedule set",
		zap.Bool("enabled", out.Enabled),
		zap.Int("interval_minutes", out.IntervalMinutes),
		zap.Float64("amount", out.FeedAmount),
	)
	s.notify(out)
	return out, nil
}

// Disable cancels the pending timer and returns to Idle
func (s *Scheduler) Disable() models.FeedSchedule {
	s.mu.Lock()
	s.schedule.Enabled = false
	s.disarmLocked()
	out := copySchedule(s.schedule)
	s.mu.Unlock()

	s.logger.Info("Feed schedule disabled")
	s.notify(out)
	return out
}

// Reschedule moves the next feed to now + interval; no-op while disabled or feeding
func (s *Scheduler) Reschedule() models.FeedSchedule {
	s.mu.Lock()
	if !s.schedule.Enabled || s.feeding || s.closed {
		out := copySchedule(s.schedule)
		s.mu.Unlock()
		return out
	}
	s.armLocked(s.clock.Now().Add(s.schedule.Interval()))
	out := copySchedule(s.schedule)
	s.mu.Unlock()

	s.notify(out)
	return out
}

// TriggerManual feeds amount now, or the scheduled amount when amount <= 0.
// It is rejected with ErrFeedInProgress while another feed runs. A failed feed
// is recorded and returned wrapped in ErrFeedFailed.
func (s *Scheduler) TriggerManual(ctx context.Context, amount float64) (models.FeedHistoryEntry, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.FeedHistoryEntry{}, ErrClosed
	}
	if s.feeding {
		s.mu.Unlock()
		s.logger.Warn("Manual feed rejected, feed in progress")
		return models.FeedHistoryEntry{}, ErrFeedInProgress
	}
	if amount <= 0 {
		amount = s.schedule.FeedAmount
	}
	s.beginLocked()
	s.mu.Unlock()

	return s.run(ctx, amount, models.FeedTypeManual)
}

// fire is the timer callback for generation gen
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.feeding || !s.schedule.Enabled {
		s.mu.Unlock()
		return
	}
	amount := s.schedule.FeedAmount
	s.beginLocked()
	s.mu.Unlock()

	if _, err := s.run(s.ctx, amount, models.FeedTypeAutomatic); err != nil {
		s.logger.Warn("Automatic feed failed", zap.Error(err))
	}
}

// beginLocked enters Feeding and cancels any pending timer
func (s *Scheduler) beginLocked() {
	s.feeding = true
	s.stopTimerLocked()
}

func (s *Scheduler) run(ctx context.Context, amount float64, feedType models.FeedType) (models.FeedHistoryEntry, error) {
	s.logger.Info("Feeding",
		zap.String("type", string(feedType)),
		zap.Float64("amount", amount),
	)

	feedErr := s.feed(ctx, amount, feedType)

	s.mu.Lock()
	completed := s.clock.Now()
	entry := models.FeedHistoryEntry{
		ID:        uuid.New().String(),
		DeviceID:  s.deviceID,
		Timestamp: completed,
		Amount:    amount,
		Type:      feedType,
		Success:   feedErr == nil,
	}
	if feedErr != nil {
		entry.Error = feedErr.Error()
	}
	s.history.add(entry)

	s.feeding = false
	last := completed
	s.schedule.LastFeedTime = &last
	if s.schedule.Enabled && !s.closed {
		s.armLocked(completed.Add(s.schedule.Interval()))
	} else {
		s.schedule.NextFeedTime = nil
	}
	out := copySchedule(s.schedule)
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.RecordFeed(context.WithoutCancel(ctx), entry); err != nil {
			s.logger.Error("Failed to record feed history",
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
		}
	}
	s.notify(out)

	if feedErr != nil {
		s.logger.Error("Feed failed",
			zap.String("type", string(feedType)),
			zap.Error(feedErr),
		)
		return entry, fmt.Errorf("%w: %v", ErrFeedFailed, feedErr)
	}
	return entry, nil
}

// armLocked sets nextFeedTime and replaces the pending timer
func (s *Scheduler) armLocked(at time.Time) {
	s.stopTimerLocked()
	next := at
	s.schedule.NextFeedTime = &next

	s.gen++
	gen := s.gen
	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })

	s.logger.Debug("Next feed armed", zap.Time("next_feed_time", at))
}

func (s *Scheduler) disarmLocked() {
	s.stopTimerLocked()
	s.schedule.NextFeedTime = nil
}

func (s *Scheduler) stopTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) notify(schedule models.FeedSchedule) {
	for _, o := range s.observers {
		o.ScheduleChanged(s.ctx, s.deviceID, schedule)
	}
}

// Close cancels the pending timer; later mutations return ErrClosed
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.cancel()
}

func copySchedule(in models.FeedSchedule) models.FeedSchedule {
	out := in
	if in.NextFeedTime != nil {
		t := *in.NextFeedTime
		out.NextFeedTime = &t
	}
	if in.LastFeedTime != nil {
		t := *in.LastFeedTime
		out.LastFeedTime = &t
	}
	return out
}
