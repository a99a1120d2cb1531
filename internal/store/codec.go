package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"aquarium-monitor/internal/models"
)

const (
	fieldLastUpdate = "lastUpdate"

	sectionSensors  = "sensors"
	sectionControls = "controls"
	sectionFeeder   = "feeder"
	sectionOutputs  = "outputs"
)

// encodePatch flattens the present sections of a patch into hash fields "section.leaf"
func encodePatch(p models.Patch) (map[string]interface{}, []string, error) {
	fields := make(map[string]interface{})
	var sections []string

	add := func(name string, v interface{}) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", name, err)
		}
		var leaves map[string]json.RawMessage
		if err := json.Unmarshal(b, &leaves); err != nil {
			return fmt.Errorf("failed to flatten %s: %w", name, err)
		}
		for leaf, raw := range leaves {
			fields[name+"."+leaf] = string(raw)
		}
		sections = append(sections, name)
		return nil
	}

	if p.Sensors != nil {
		if err := add(sectionSensors, p.Sensors); err != nil {
			return nil, nil, err
		}
	}
	if p.Controls != nil {
		if err := add(sectionControls, p.Controls); err != nil {
			return nil, nil, err
		}
	}
	if p.Feeder != nil {
		if err := add(sectionFeeder, p.Feeder); err != nil {
			return nil, nil, err
		}
	}
	if p.Outputs != nil {
		if err := add(sectionOutputs, p.Outputs); err != nil {
			return nil, nil, err
		}
	}
	if p.LastUpdate != nil {
		fields[fieldLastUpdate] = strconv.FormatInt(*p.LastUpdate, 10)
		sections = append(sections, fieldLastUpdate)
	}

	return fields, sections, nil
}

// stateToPatch every present section of s
func stateToPatch(s models.DeviceState) models.Patch {
	p := models.Patch{
		Sensors:  s.Sensors,
		Controls: s.Controls,
		Feeder:   s.Feeder,
		Outputs:  s.Outputs,
	}
	if s.LastUpdate != 0 {
		ts := s.LastUpdate
		p.LastUpdate = &ts
	}
	return p
}

// decodeHash rebuilds a DeviceState from hash fields; unknown fields are ignored
func decodeHash(fields map[string]string) (models.DeviceState, error) {
	top := make(map[string]json.RawMessage)
	sections := make(map[string]map[string]json.RawMessage)

	for name, value := range fields {
		if !json.Valid([]byte(value)) {
			return models.DeviceState{}, &models.ValidationError{Field: name, Reason: "value is not valid JSON"}
		}
		section, leaf, nested := strings.Cut(name, ".")
		if !nested {
			top[name] = json.RawMessage(value)
			continue
		}
		if sections[section] == nil {
			sections[section] = make(map[string]json.RawMessage)
		}
		sections[section][leaf] = json.RawMessage(value)
	}

	for name, leaves := range sections {
		b, err := json.Marshal(leaves)
		if err != nil {
			return models.DeviceState{}, &models.ValidationError{Field: name, Err: err}
		}
		top[name] = b
	}

	doc, err := json.Marshal(top)
	if err != nil {
		return models.DeviceState{}, &models.ValidationError{Err: err}
	}

	var state models.DeviceState
	if err := json.Unmarshal(doc, &state); err != nil {
		return models.DeviceState{}, &models.ValidationError{Reason: "document does not match device state shape", Err: err}
	}
	if err := state.Validate(); err != nil {
		return models.DeviceState{}, err
	}
	return state, nil
}
