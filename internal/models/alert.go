package models

// AlertType sensor category an alert belongs to
type AlertType string

const (
	AlertTypeTemperature AlertType = "temperature"
	AlertTypePH          AlertType = "ph"
	AlertTypeTurbidity   AlertType = "turbidity"
	AlertTypeAmmonia     AlertType = "ammonia"
	AlertTypeWaterLevel  AlertType = "waterLevel"
	AlertTypeFood        AlertType = "food"
)

// Severity alert severity
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Rank higher is more severe; unknown severities rank 0
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// ParseSeverity returns false for unknown values
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium:
		return Severity(s), true
	default:
		return "", false
	}
}

// Alert derived from a sensor snapshot, never persisted by the core
type Alert struct {
	Type     AlertType `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}
