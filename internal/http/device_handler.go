package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"aquarium-monitor/internal/control"
	"aquarium-monitor/internal/feeder"
	"aquarium-monitor/internal/models"
	"aquarium-monitor/internal/monitor"
	"aquarium-monitor/internal/notify"
	"aquarium-monitor/internal/store"

	"go.uber.org/zap"
)

// ErrUnknownDevice the device is not served by this process
var ErrUnknownDevice = errors.New("unknown device")

// StateReader derived device state
type StateReader interface {
	Display(deviceID string) (monitor.DisplayState, error)
	Alerts(deviceID string) ([]models.Alert, error)
}

// Controller control operations for one device
type Controller interface {
	TogglePump(ctx context.Context, id int, on bool) error
	SetLampBrightness(ctx context.Context, value int) error
	SetLight(ctx context.Context, on bool) error
}

// FeedScheduler feed operations for one device
type FeedScheduler interface {
	TriggerManual(ctx context.Context, amount float64) (models.FeedHistoryEntry, error)
	Schedule() models.FeedSchedule
	State() feeder.State
	SetSchedule(s models.FeedSchedule) (models.FeedSchedule, error)
	Disable() models.FeedSchedule
	Reschedule() models.FeedSchedule
	History() []models.FeedHistoryEntry
	ClearHistory()
}

// Devices resolves per-device collaborators
type Devices interface {
	Controller(deviceID string) (Controller, error)
	Scheduler(deviceID string) (FeedScheduler, error)
}

// FeedHistoryLister persisted feed history
type FeedHistoryLister interface {
	ListRecent(ctx context.Context, deviceID string, limit int) ([]models.FeedHistoryEntry, error)
}

// TelemetryLister persisted sensor readings
type TelemetryLister interface {
	ListSince(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.SensorReading, error)
}

// AlertFeed recently notified alerts
type AlertFeed interface {
	Recent(ctx context.Context, count int64) ([]notify.Event, error)
}

// DeviceHandler device API
type DeviceHandler struct {
	states      StateReader
	devices     Devices
	feedHistory FeedHistoryLister
	telemetry   TelemetryLister
	alertFeed   AlertFeed
	logger      *zap.Logger
	now         func() time.Time
}

// NewDeviceHandler feedHistory, telemetry and alertFeed may be nil
func NewDeviceHandler(states StateReader, devices Devices, feedHistory FeedHistoryLister, telemetry TelemetryLister, alertFeed AlertFeed, logger *zap.Logger) *DeviceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceHandler{
		states:      states,
		devices:     devices,
		feedHistory: feedHistory,
		telemetry:   telemetry,
		alertFeed:   alertFeed,
		logger:      logger,
		now:         time.Now,
	}
}

const maxBodyBytes = 1 << 16

func (h *DeviceHandler) GetState(w http.ResponseWriter, r *http.Request, deviceID string) {
	d, err := h.states.Display(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(d))
}

func (h *DeviceHandler) GetAlerts(w http.ResponseWriter, r *http.Request, deviceID string) {
	alerts, err := h.states.Alerts(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}

func (h *DeviceHandler) TogglePump(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req struct {
		Pump int   `json:"pump"`
		On   *bool `json:"on"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil || req.On == nil {
		writeJSON(w, http.StatusBadRequest, Fail("body must be {\"pump\": 1|2, \"on\": bool}"))
		return
	}
	c, err := h.devices.Controller(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	if err := c.TogglePump(r.Context(), req.Pump, *req.On); err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"pump": req.Pump, "on": *req.On}))
}

func (h *DeviceHandler) SetLamp(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req struct {
		Brightness *int `json:"brightness"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil || req.Brightness == nil {
		writeJSON(w, http.StatusBadRequest, Fail("body must be {\"brightness\": 0-100}"))
		return
	}
	c, err := h.devices.Controller(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	brightness := control.ClampBrightness(*req.Brightness)
	if err := c.SetLampBrightness(r.Context(), brightness); err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"brightness": brightness, "lightOn": models.LightOn(brightness)}))
}

func (h *DeviceHandler) SetLight(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req struct {
		On *bool `json:"on"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil || req.On == nil {
		writeJSON(w, http.StatusBadRequest, Fail("body must be {\"on\": bool}"))
		return
	}
	c, err := h.devices.Controller(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	if err := c.SetLight(r.Context(), *req.On); err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"lightOn": *req.On}))
}

func (h *DeviceHandler) TriggerFeed(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil || req.Amount < 0 {
		writeJSON(w, http.StatusBadRequest, Fail("body must be {\"amount\": grams >= 0}"))
		return
	}
	s, err := h.devices.Scheduler(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	entry, err := s.TriggerManual(r.Context(), req.Amount)
	if err != nil {
		if errors.Is(err, feeder.ErrFeedFailed) {
			writeJSON(w, http.StatusBadGateway, Result[models.FeedHistoryEntry]{
				Code: ResultError, Type: "error", Message: err.Error(), Result: entry,
			})
			return
		}
		h.writeError(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(entry))
}

type scheduleView struct {
	models.FeedSchedule
	State feeder.State `json:"state"`
}

func (h *DeviceHandler) GetSchedule(w http.ResponseWriter, r *http.Request, deviceID string) {
	s, err := h.devices.Scheduler(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(scheduleView{FeedSchedule: s.Schedule(), State: s.State()}))
}

func (h *DeviceHandler) PutSchedule(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req struct {
		Name            string  `json:"name"`
		Enabled         bool    `json:"enabled"`
		IntervalMinutes int     `json:"intervalMinutes"`
		FeedAmount      float64 `json:"feedAmount"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid schedule body"))
		return
	}
	s, err := h.devices.Scheduler(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}

	var sched models.FeedSchedule
	if !req.Enabled && req.IntervalMinutes == 0 {
		sched = s.Disable()
	} else {
		sched, err = s.SetSchedule(models.FeedSchedule{
			Name:            req.Name,
			Enabled:         req.Enabled,
			IntervalMinutes: req.IntervalMinutes,
			FeedAmount:      req.FeedAmount,
		})
		if err != nil {
			h.writeError(w, deviceID, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, Ok(scheduleView{FeedSchedule: sched, State: s.State()}))
}

func (h *DeviceHandler) Reschedule(w http.ResponseWriter, r *http.Request, deviceID string) {
	s, err := h.devices.Scheduler(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	sched := s.Reschedule()
	writeJSON(w, http.StatusOK, Ok(scheduleView{FeedSchedule: sched, State: s.State()}))
}

// loadFeedHistory in-memory history, or persisted history with ?source=db
func (h *DeviceHandler) loadFeedHistory(r *http.Request, deviceID string) ([]models.FeedHistoryEntry, error) {
	limit := parseInt(r.URL.Query().Get("limit"), 100)
	if r.URL.Query().Get("source") == "db" && h.feedHistory != nil {
		return h.feedHistory.ListRecent(r.Context(), deviceID, limit)
	}
	s, err := h.devices.Scheduler(deviceID)
	if err != nil {
		return nil, err
	}
	entries := s.History()
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (h *DeviceHandler) GetFeedHistory(w http.ResponseWriter, r *http.Request, deviceID string) {
	entries, err := h.loadFeedHistory(r, deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(entries))
}

func (h *DeviceHandler) ClearFeedHistory(w http.ResponseWriter, r *http.Request, deviceID string) {
	s, err := h.devices.Scheduler(deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	s.ClearHistory()
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *DeviceHandler) ExportFeedHistory(w http.ResponseWriter, r *http.Request, deviceID string) {
	entries, err := h.loadFeedHistory(r, deviceID)
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	data, err := GenerateFeedHistoryExport(deviceID, entries)
	if err != nil {
		h.logger.Error("Failed to generate feed history export", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=feed-history-"+deviceID+".xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *DeviceHandler) GetTelemetry(w http.ResponseWriter, r *http.Request, deviceID string) {
	if h.telemetry == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("telemetry history is not enabled"))
		return
	}
	since, ok := parseSince(r.URL.Query().Get("since"), h.now(), 24*time.Hour)
	if !ok {
		writeJSON(w, http.StatusBadRequest, Fail("since must be RFC3339, epoch millis or a duration"))
		return
	}
	readings, err := h.telemetry.ListSince(r.Context(), deviceID, since, parseInt(r.URL.Query().Get("limit"), 1000))
	if err != nil {
		h.writeError(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(readings))
}

func (h *DeviceHandler) RecentAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alertFeed == nil {
		writeJSON(w, http.StatusOK, Ok([]notify.Event{}))
		return
	}
	events, err := h.alertFeed.Recent(r.Context(), int64(parseInt(r.URL.Query().Get("limit"), 50)))
	if err != nil {
		h.logger.Error("Failed to read recent alerts", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, Fail("failed to read recent alerts"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(events))
}

func (h *DeviceHandler) writeError(w http.ResponseWriter, deviceID string, err error) {
	status := http.StatusInternalServerError
	var verr *models.ValidationError
	switch {
	case errors.Is(err, ErrUnknownDevice), errors.Is(err, monitor.ErrUnknownDevice), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, control.ErrInvalidPump), errors.Is(err, feeder.ErrInvalidSchedule), errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, control.ErrNoCurrentState), errors.Is(err, feeder.ErrFeedInProgress):
		status = http.StatusConflict
	case store.IsConnectivity(err), errors.Is(err, feeder.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("device_id", deviceID), zap.Error(err))
	}
	writeJSON(w, status, Fail(err.Error()))
}
