package models

import "time"

// Metric names carried in SensorReading.Metrics. Readings may carry
// additional names; only these participate in classification.
const (
	MetricPH          = "ph"
	MetricTurbidity   = "turbidity"
	MetricChlorine    = "chlorine"
	MetricTemperature = "temperature"
	MetricWaterLevel  = "water_level"
)

// StatusTier is the derived qualitative status of a tank. It is a
// projection of the latest reading, recomputed on every event, never
// stored as authoritative state.
type StatusTier string

const (
	TierHealthy  StatusTier = "healthy"
	TierWarning  StatusTier = "warning"
	TierCritical StatusTier = "critical"
)

// Rank orders tiers by severity (healthy < warning < critical).
func (t StatusTier) Rank() int {
	switch t {
	case TierCritical:
		return 2
	case TierWarning:
		return 1
	default:
		return 0
	}
}

// Severity of an alert event.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SensorReading is one telemetry sample for a monitored tank.
// Readings pass through the core transiently; they are classified and
// fanned out but never persisted here.
type SensorReading struct {
	ResourceID string             `json:"resource_id" example:"TANK-0042"`
	Ward       string             `json:"ward,omitempty" example:"ward-07"`
	Timestamp  time.Time          `json:"timestamp"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Valid reports whether the reading carries the fields the router
// requires. Malformed readings are dropped, not errors.
func (r SensorReading) Valid() bool {
	return r.ResourceID != "" && !r.Timestamp.IsZero() && r.Metrics != nil
}

// AlertEvent is a producer-assigned alert for a tank. The ID is stable:
// re-delivery of the same ID (reconnect replay) is a duplicate, not a
// new alert.
type AlertEvent struct {
	ID         string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	ResourceID string    `json:"resource_id" example:"TANK-0042"`
	Severity   Severity  `json:"severity" example:"critical"`
	Message    string    `json:"message" example:"turbidity above critical bound"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Valid reports whether the alert carries the required fields.
func (a AlertEvent) Valid() bool {
	return a.ID != "" && a.ResourceID != "" && (a.Severity == SeverityWarning || a.Severity == SeverityCritical)
}
