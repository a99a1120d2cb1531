package service

import (
	"context"
	"fmt"
	"sync"

	"aquarium-monitor/internal/control"
	"aquarium-monitor/internal/feeder"
	httpapi "aquarium-monitor/internal/http"
	"aquarium-monitor/internal/models"

	"go.uber.org/zap"
)

// deviceUnit per-device control and feeding
type deviceUnit struct {
	facade    *control.Facade
	scheduler *feeder.Scheduler
}

// deviceRegistry implements httpapi.Devices
type deviceRegistry struct {
	units map[string]*deviceUnit
}

func (r *deviceRegistry) unit(deviceID string) (*deviceUnit, error) {
	u, ok := r.units[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", httpapi.ErrUnknownDevice, deviceID)
	}
	return u, nil
}

func (r *deviceRegistry) Controller(deviceID string) (httpapi.Controller, error) {
	u, err := r.unit(deviceID)
	if err != nil {
		return nil, err
	}
	return u.facade, nil
}

func (r *deviceRegistry) Scheduler(deviceID string) (httpapi.FeedScheduler, error) {
	u, err := r.unit(deviceID)
	if err != nil {
		return nil, err
	}
	return u.scheduler, nil
}

// autoFeedSync mirrors the schedule's enabled flag into controls.autoFeedEnabled
type autoFeedSync struct {
	facade *control.Facade
	logger *zap.Logger

	mu   sync.Mutex
	last *bool
}

func (a *autoFeedSync) ScheduleChanged(ctx context.Context, deviceID string, schedule models.FeedSchedule) {
	a.mu.Lock()
	if a.last != nil && *a.last == schedule.Enabled {
		a.mu.Unlock()
		return
	}
	enabled := schedule.Enabled
	a.last = &enabled
	a.mu.Unlock()

	if err := a.facade.SetAutoFeed(ctx, enabled); err != nil {
		a.logger.Warn("Failed to sync autoFeedEnabled",
			zap.String("device_id", deviceID),
			zap.Bool("enabled", enabled),
			zap.Error(err),
		)
		a.mu.Lock()
		a.last = nil
		a.mu.Unlock()
	}
}
