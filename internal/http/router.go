package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const devicesPrefix = "/api/v1/devices/"

// Router wraps http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterDeviceRoutes registers /api/v1/devices/{id}/... and /api/v1/alerts/recent
func (r *Router) RegisterDeviceRoutes(d *DeviceHandler) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})

	r.Handle("/api/v1/alerts/recent", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		d.RecentAlerts(w, req)
	})

	r.Handle(devicesPrefix, func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, devicesPrefix)
		id, sub, _ := strings.Cut(rest, "/")
		if id == "" || sub == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		route, ok := deviceRoutes[routeKey{method: req.Method, path: sub}]
		if !ok {
			if pathKnown(sub) {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}
		route(d, w, req, id)
	})
}

type routeKey struct {
	method string
	path   string
}

type deviceRoute func(d *DeviceHandler, w http.ResponseWriter, r *http.Request, deviceID string)

var deviceRoutes = map[routeKey]deviceRoute{
	{http.MethodGet, "state"}:               (*DeviceHandler).GetState,
	{http.MethodGet, "alerts"}:              (*DeviceHandler).GetAlerts,
	{http.MethodPost, "controls/pump"}:      (*DeviceHandler).TogglePump,
	{http.MethodPost, "controls/lamp"}:      (*DeviceHandler).SetLamp,
	{http.MethodPost, "controls/light"}:     (*DeviceHandler).SetLight,
	{http.MethodPost, "feed"}:               (*DeviceHandler).TriggerFeed,
	{http.MethodGet, "feed/schedule"}:       (*DeviceHandler).GetSchedule,
	{http.MethodPut, "feed/schedule"}:       (*DeviceHandler).PutSchedule,
	{http.MethodPost, "feed/reschedule"}:    (*DeviceHandler).Reschedule,
	{http.MethodGet, "feed/history"}:        (*DeviceHandler).GetFeedHistory,
	{http.MethodDelete, "feed/history"}:     (*DeviceHandler).ClearFeedHistory,
	{http.MethodGet, "feed/history/export"}: (*DeviceHandler).ExportFeedHistory,
	{http.MethodGet, "telemetry"}:           (*DeviceHandler).GetTelemetry,
}

func pathKnown(sub string) bool {
	for k := range deviceRoutes {
		if k.path == sub {
			return true
		}
	}
	return false
}
