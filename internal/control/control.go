// Package control issues pump, lamp and feed commands against a device document.
//
// Every operation reads the current document, merges the change into the
// controls section and writes the whole section back. There is no version
// check: two writers racing on the same document can lose an update. Device
// firmware relies on this plain read-merge-write contract.
package control

import (
	"context"
	"errors"
	"fmt"

	"aquarium-monitor/internal/models"
	"aquarium-monitor/internal/store"

	"go.uber.org/zap"
)

// DefaultLightBrightness used by SetLight when switching the lamp on
const DefaultLightBrightness = 50

var (
	// ErrNoCurrentState the document or its controls section is missing
	ErrNoCurrentState = errors.New("no current device state")
	// ErrInvalidPump pump id other than 1 or 2
	ErrInvalidPump = errors.New("invalid pump id")
)

// Document the store operations the facade needs
type Document interface {
	DeviceID() string
	ReadOnce(ctx context.Context) (models.DeviceState, error)
	MergeWrite(ctx context.Context, patch models.Patch) error
}

// Facade device control operations for one document
type Facade struct {
	doc    Document
	logger *zap.Logger
}

// NewFacade creates a Facade
func NewFacade(doc Document, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		doc:    doc,
		logger: logger.With(zap.String("device_id", doc.DeviceID())),
	}
}

// TogglePump sets pump1 or pump2
func (f *Facade) TogglePump(ctx context.Context, id int, on bool) error {
	if id != 1 && id != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidPump, id)
	}
	return f.update(ctx, "toggle_pump", func(c *models.Controls) {
		if id == 1 {
			c.Pump1 = on
		} else {
			c.Pump2 = on
		}
	}, zap.Int("pump", id), zap.Bool("on", on))
}

// SetLampBrightness writes value as given; callers clamp with ClampBrightness
func (f *Facade) SetLampBrightness(ctx context.Context, value int) error {
	return f.update(ctx, "set_lamp_brightness", func(c *models.Controls) {
		c.LampBrightness = value
	}, zap.Int("brightness", value))
}

// SetLight switches the lamp on at DefaultLightBrightness or off
func (f *Facade) SetLight(ctx context.Context, on bool) error {
	brightness := 0
	if on {
		brightness = DefaultLightBrightness
	}
	return f.SetLampBrightness(ctx, brightness)
}

// TriggerFeed sets feedNow; the device clears it once consumed
func (f *Facade) TriggerFeed(ctx context.Context) error {
	return f.update(ctx, "trigger_feed", func(c *models.Controls) {
		c.FeedNow = true
	})
}

// SetAutoFeed sets controls.autoFeedEnabled
func (f *Facade) SetAutoFeed(ctx context.Context, enabled bool) error {
	return f.update(ctx, "set_auto_feed", func(c *models.Controls) {
		c.AutoFeedEnabled = enabled
	}, zap.Bool("enabled", enabled))
}

func (f *Facade) update(ctx context.Context, op string, mutate func(*models.Controls), fields ...zap.Field) error {
	state, err := f.doc.ReadOnce(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			f.logger.Warn("Control command without current state", zap.String("op", op))
			return fmt.Errorf("%s: %w", op, ErrNoCurrentState)
		}
		return fmt.Errorf("%s: failed to read current state: %w", op, err)
	}
	if state.Controls == nil {
		f.logger.Warn("Control command without controls section", zap.String("op", op))
		return fmt.Errorf("%s: %w", op, ErrNoCurrentState)
	}

	controls := *state.Controls
	mutate(&controls)

	if err := f.doc.MergeWrite(ctx, models.Patch{Controls: &controls}); err != nil {
		f.logger.Error("Failed to write controls",
			append(fields, zap.String("op", op), zap.Error(err))...,
		)
		return fmt.Errorf("%s: failed to write controls: %w", op, err)
	}

	f.logger.Info("Control command applied", append(fields, zap.String("op", op))...)
	return nil
}

// ClampBrightness limits v to [0,100]
func ClampBrightness(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
