package models

import (
	"fmt"
)

// DeviceState shared per-device document
// Sub-objects are pointers so an absent section can be told apart from a zero value.
type DeviceState struct {
	Sensors    *Sensors  `json:"sensors,omitempty"`
	Controls   *Controls `json:"controls,omitempty"`
	Feeder     *Feeder   `json:"feeder,omitempty"`
	Outputs    *Outputs  `json:"outputs,omitempty"`
	LastUpdate int64     `json:"lastUpdate,omitempty"` // epoch millis, written by the device
}

// Sensors telemetry written by the device
type Sensors struct {
	Temperature  float64 `json:"temperature"`  // °C
	PH           float64 `json:"ph"`
	Turbidity    float64 `json:"turbidity"`    // NTU
	Ammonia      float64 `json:"ammonia"`      // ppm
	UV           float64 `json:"uv"`
	WaterLevel   int     `json:"waterLevel"`   // percent
	WaterLevelCm float64 `json:"waterLevelCm"`
	FoodEmpty    bool    `json:"foodEmpty"`
}

// Controls commands written by clients
type Controls struct {
	Pump1           bool `json:"pump1"`
	Pump2           bool `json:"pump2"`
	LampBrightness  int  `json:"lampBrightness"` // 0 = off
	AutoFeedEnabled bool `json:"autoFeedEnabled"`
	FeedNow         bool `json:"feedNow"` // set by clients, cleared by the device
}

// Feeder device-reported feeder status
type Feeder struct {
	AutoFeedEnabled bool   `json:"autoFeedEnabled"`
	FeedCount       int    `json:"feedCount"`
	NextFeed        string `json:"nextFeed"` // human readable, e.g. "2h 15m"
}

// Outputs actuator-confirmed state; may lag Controls
type Outputs struct {
	Pump1          bool `json:"pump1"`
	Pump2          bool `json:"pump2"`
	LampBrightness int  `json:"lampBrightness"`
}

// Patch top-level keys to merge into a DeviceState; nil sections are left untouched
type Patch struct {
	Sensors    *Sensors
	Controls   *Controls
	Feeder     *Feeder
	Outputs    *Outputs
	LastUpdate *int64
}

// IsEmpty reports whether the patch carries no keys
func (p Patch) IsEmpty() bool {
	return p.Sensors == nil && p.Controls == nil && p.Feeder == nil && p.Outputs == nil && p.LastUpdate == nil
}

// LightOn lamp is on for any brightness above zero
func LightOn(brightness int) bool {
	return brightness > 0
}

// Validate checks range invariants of a decoded snapshot
func (s *DeviceState) Validate() error {
	return validateSections(s.Controls, s.Feeder, s.Outputs)
}

// Validate checks the sections a patch would write against the same invariants
// the read path enforces, so an accepted write always reads back.
func (p Patch) Validate() error {
	return validateSections(p.Controls, p.Feeder, p.Outputs)
}

func validateSections(controls *Controls, feeder *Feeder, outputs *Outputs) error {
	if controls != nil {
		if err := validateBrightness("controls.lampBrightness", controls.LampBrightness); err != nil {
			return err
		}
	}
	if outputs != nil {
		if err := validateBrightness("outputs.lampBrightness", outputs.LampBrightness); err != nil {
			return err
		}
	}
	if feeder != nil && feeder.FeedCount < 0 {
		return &ValidationError{Field: "feeder.feedCount", Reason: fmt.Sprintf("must be >= 0, got %d", feeder.FeedCount)}
	}
	return nil
}

func validateBrightness(field string, v int) error {
	if v < 0 || v > 100 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be within [0,100], got %d", v)}
	}
	return nil
}

// ValidationError a stored document or a caller value does not fit the typed shape
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "validation failed"
	if e.Field != "" {
		msg += " for " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
