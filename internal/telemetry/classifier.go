// Package telemetry classifies sensor readings, deduplicates alerts, and
// fans accepted events out to in-process observers.
package telemetry

import "github.com/wardflow/tanksentry/pkg/models"

// Policy holds the water-quality bounds used to derive a status tier.
// All bounds come from configuration; the zero value classifies nothing
// as unhealthy, so callers should start from DefaultPolicy.
type Policy struct {
	PHWarnLow     float64 `mapstructure:"ph_warn_low"`
	PHWarnHigh    float64 `mapstructure:"ph_warn_high"`
	PHCritLow     float64 `mapstructure:"ph_crit_low"`
	PHCritHigh    float64 `mapstructure:"ph_crit_high"`
	TurbidityWarn float64 `mapstructure:"turbidity_warn"`
	TurbidityCrit float64 `mapstructure:"turbidity_crit"`
	ChlorineWarn  float64 `mapstructure:"chlorine_warn"`
	ChlorineCrit  float64 `mapstructure:"chlorine_crit"`
}

// DefaultPolicy returns the canonical deployment profile. Chlorine uses
// the stricter 2.0 mg/L critical bound of the two profiles seen in the
// field, so ambiguity errs toward alerting.
func DefaultPolicy() Policy {
	return Policy{
		PHWarnLow:     6.8,
		PHWarnHigh:    8.2,
		PHCritLow:     6.5,
		PHCritHigh:    8.5,
		TurbidityWarn: 3.0,
		TurbidityCrit: 5.0,
		ChlorineWarn:  1.5,
		ChlorineCrit:  2.0,
	}
}

// Classify maps a metrics tuple to a status tier. It is pure and total:
// a missing metric contributes nothing (absence is not evidence of a
// problem), unknown metric names are ignored, and when conditions for
// several tiers hold the most severe tier wins.
func (p Policy) Classify(metrics map[string]float64) models.StatusTier {
	tier := models.TierHealthy

	raise := func(t models.StatusTier) {
		if t.Rank() > tier.Rank() {
			tier = t
		}
	}

	if ph, ok := metrics[models.MetricPH]; ok {
		switch {
		case ph < p.PHCritLow || ph > p.PHCritHigh:
			raise(models.TierCritical)
		case ph < p.PHWarnLow || ph > p.PHWarnHigh:
			raise(models.TierWarning)
		}
	}

	if turb, ok := metrics[models.MetricTurbidity]; ok {
		switch {
		case turb > p.TurbidityCrit:
			raise(models.TierCritical)
		case turb > p.TurbidityWarn:
			raise(models.TierWarning)
		}
	}

	if cl, ok := metrics[models.MetricChlorine]; ok {
		switch {
		case cl > p.ChlorineCrit:
			raise(models.TierCritical)
		case cl > p.ChlorineWarn:
			raise(models.TierWarning)
		}
	}

	return tier
}
