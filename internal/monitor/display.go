package monitor

import (
	"time"

	"aquarium-monitor/internal/alert"
	"aquarium-monitor/internal/models"
)

// DisplayState consumer-facing view of one device
type DisplayState struct {
	DeviceID       string           `json:"deviceId"`
	Sensors        *models.Sensors  `json:"sensors,omitempty"`
	Controls       *models.Controls `json:"controls,omitempty"`
	Feeder         *models.Feeder   `json:"feeder,omitempty"`
	Outputs        *models.Outputs  `json:"outputs,omitempty"`
	LightOn        bool             `json:"lightOn"`
	LampBrightness int              `json:"lampBrightness"`
	Pump1          bool             `json:"pump1"`
	Pump2          bool             `json:"pump2"`
	TurbidityLabel string           `json:"turbidityLabel,omitempty"`
	Alerts         []models.Alert   `json:"alerts"`
	LastUpdate     *time.Time       `json:"lastUpdate,omitempty"`
	Stale          bool             `json:"stale"`
}

// Derive builds the display state. staleAfter == 0 disables the staleness check.
func Derive(deviceID string, state models.DeviceState, alerts []models.Alert, now time.Time, staleAfter time.Duration) DisplayState {
	d := DisplayState{
		DeviceID: deviceID,
		Sensors:  state.Sensors,
		Controls: state.Controls,
		Feeder:   state.Feeder,
		Outputs:  state.Outputs,
		Alerts:   alerts,
	}
	if d.Alerts == nil {
		d.Alerts = []models.Alert{}
	}

	if state.Controls != nil {
		d.LampBrightness = state.Controls.LampBrightness
		d.LightOn = models.LightOn(state.Controls.LampBrightness)
		d.Pump1 = state.Controls.Pump1
		d.Pump2 = state.Controls.Pump2
	}
	if state.Sensors != nil {
		d.TurbidityLabel = alert.TurbidityDescription(state.Sensors.Turbidity)
	}

	if state.LastUpdate > 0 {
		ts := time.UnixMilli(state.LastUpdate)
		d.LastUpdate = &ts
	}
	d.Stale = IsStale(state.LastUpdate, now, staleAfter)
	return d
}

// IsStale reports whether lastUpdate (epoch millis) is older than staleAfter.
// A device that never reported is stale. staleAfter == 0 disables the check.
func IsStale(lastUpdate int64, now time.Time, staleAfter time.Duration) bool {
	if staleAfter <= 0 {
		return false
	}
	if lastUpdate <= 0 {
		return true
	}
	return now.Sub(time.UnixMilli(lastUpdate)) > staleAfter
}
