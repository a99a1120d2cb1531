package alert

import (
	"fmt"

	"aquarium-monitor/internal/models"
)

// rule evaluates one sensor category; at most one alert per category
type rule func(e *Evaluator, s models.Sensors) (models.Alert, bool)

// Evaluator maps sensor snapshots to alerts. It is stateless and safe for
// concurrent use.
type Evaluator struct {
	ammoniaWarn models.Severity
	rules       []rule
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithAmmoniaWarnSeverity severity for 0.5 < ammonia <= 1.0 ppm
func WithAmmoniaWarnSeverity(s models.Severity) Option {
	return func(e *Evaluator) {
		e.ammoniaWarn = s
	}
}

// NewEvaluator creates an Evaluator
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		ammoniaWarn: models.SeverityMedium,
		// output order, also the tie-break order for Primary
		rules: []rule{
			evaluateTemperature,
			evaluatePH,
			evaluateAmmonia,
			evaluateTurbidity,
			evaluateWaterLevel,
			evaluateFood,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewEvaluatorFromConfig accepts the configured ammonia severity name
func NewEvaluatorFromConfig(ammoniaWarnSeverity string) (*Evaluator, error) {
	sev, ok := models.ParseSeverity(ammoniaWarnSeverity)
	if !ok {
		return nil, fmt.Errorf("invalid ammonia warn severity %q", ammoniaWarnSeverity)
	}
	return NewEvaluator(WithAmmoniaWarnSeverity(sev)), nil
}

// Evaluate returns every matching alert, one per category at most
func (e *Evaluator) Evaluate(s models.Sensors) []models.Alert {
	var alerts []models.Alert
	for _, r := range e.rules {
		if a, ok := r(e, s); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

// Primary returns the single most severe alert
func (e *Evaluator) Primary(s models.Sensors) (models.Alert, bool) {
	var (
		best  models.Alert
		found bool
	)
	for _, a := range e.Evaluate(s) {
		if !found || a.Severity.Rank() > best.Severity.Rank() {
			best = a
			found = true
		}
	}
	return best, found
}

var defaultEvaluator = NewEvaluator()

// Evaluate uses the default thresholds
func Evaluate(s models.Sensors) []models.Alert {
	return defaultEvaluator.Evaluate(s)
}

// Primary uses the default thresholds
func Primary(s models.Sensors) (models.Alert, bool) {
	return defaultEvaluator.Primary(s)
}
