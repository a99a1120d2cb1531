package alert

import (
	"fmt"
	"strconv"
	"strings"

	"aquarium-monitor/internal/models"
)

func evaluateTemperature(_ *Evaluator, s models.Sensors) (models.Alert, bool) {
	t := s.Temperature
	switch {
	case t < 18 || t > 32:
		return models.Alert{
			Type:     models.AlertTypeTemperature,
			Severity: models.SeverityCritical,
			Message:  fmt.Sprintf("Temperature %s°C is dangerously outside the safe range (20-30°C)! Fish are in danger.", num(t)),
		}, true
	case t < 20 || t > 30:
		return models.Alert{
			Type:     models.AlertTypeTemperature,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("Temperature %s°C is outside the normal range (20-30°C).", num(t)),
		}, true
	}
	return models.Alert{}, false
}

func evaluatePH(_ *Evaluator, s models.Sensors) (models.Alert, bool) {
	ph := s.PH
	switch {
	case ph < 5.5:
		return models.Alert{
			Type:     models.AlertTypePH,
			Severity: models.SeverityCritical,
			Message:  fmt.Sprintf("pH level %s is critically low! Fish are in danger.", num(ph)),
		}, true
	case ph < 6.0:
		return models.Alert{
			Type:     models.AlertTypePH,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("pH level %s is low. Check water chemistry soon.", num(ph)),
		}, true
	case ph > 8.5:
		return models.Alert{
			Type:     models.AlertTypePH,
			Severity: models.SeverityCritical,
			Message:  fmt.Sprintf("pH level %s is critically high! Fish are in danger.", num(ph)),
		}, true
	case ph > 8.0:
		return models.Alert{
			Type:     models.AlertTypePH,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("pH level %s is high. Check water chemistry soon.", num(ph)),
		}, true
	}
	return models.Alert{}, false
}

func evaluateAmmonia(e *Evaluator, s models.Sensors) (models.Alert, bool) {
	a := s.Ammonia
	switch {
	case a > 1.0:
		return models.Alert{
			Type:     models.AlertTypeAmmonia,
			Severity: models.SeverityCritical,
			Message:  fmt.Sprintf("Ammonia level %s ppm is toxic! Immediate water change needed.", num(a)),
		}, true
	case a > 0.5:
		return models.Alert{
			Type:     models.AlertTypeAmmonia,
			Severity: e.ammoniaWarn,
			Message:  fmt.Sprintf("Ammonia level %s ppm is elevated. Plan a partial water change.", num(a)),
		}, true
	}
	return models.Alert{}, false
}

func evaluateTurbidity(_ *Evaluator, s models.Sensors) (models.Alert, bool) {
	t := s.Turbidity
	if t <= 10.0 {
		return models.Alert{}, false
	}
	sev := models.SeverityMedium
	if t > 15.0 {
		sev = models.SeverityCritical
	}
	return models.Alert{
		Type:     models.AlertTypeTurbidity,
		Severity: sev,
		Message: fmt.Sprintf("Water is %s (turbidity %s NTU)! Filter may need cleaning.",
			strings.ToLower(TurbidityDescription(t)), num(t)),
	}, true
}

func evaluateWaterLevel(_ *Evaluator, s models.Sensors) (models.Alert, bool) {
	if s.WaterLevel != 0 {
		return models.Alert{}, false
	}
	return models.Alert{
		Type:     models.AlertTypeWaterLevel,
		Severity: models.SeverityCritical,
		Message:  "Water level is 0%! Tank appears empty - check water supply.",
	}, true
}

func evaluateFood(_ *Evaluator, s models.Sensors) (models.Alert, bool) {
	if !s.FoodEmpty {
		return models.Alert{}, false
	}
	return models.Alert{
		Type:     models.AlertTypeFood,
		Severity: models.SeverityMedium,
		Message:  "Food dispenser is empty! Please refill.",
	}, true
}

// TurbidityDescription human label for an NTU reading
func TurbidityDescription(ntu float64) string {
	switch {
	case ntu <= 1:
		return "Crystal Clear"
	case ntu <= 5:
		return "Very Clear"
	case ntu <= 10:
		return "Clear"
	case ntu <= 15:
		return "Slightly Cloudy"
	case ntu <= 25:
		return "Cloudy"
	case ntu <= 50:
		return "Very Cloudy"
	default:
		return "Extremely Cloudy"
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
