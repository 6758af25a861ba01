package telemetry

import (
	"testing"

	"github.com/wardflow/tanksentry/pkg/models"
)

func TestClassify_Tiers(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		metrics map[string]float64
		want    models.StatusTier
	}{
		{
			name:    "nominal metrics",
			metrics: map[string]float64{"ph": 7.0, "turbidity": 1.0, "chlorine": 0.5},
			want:    models.TierHealthy,
		},
		{
			name:    "empty metrics default healthy",
			metrics: map[string]float64{},
			want:    models.TierHealthy,
		},
		{
			name:    "unknown metrics ignored",
			metrics: map[string]float64{"salinity": 99.0, "ph": 7.0},
			want:    models.TierHealthy,
		},
		{
			name:    "low ph warning",
			metrics: map[string]float64{"ph": 6.7},
			want:    models.TierWarning,
		},
		{
			name:    "high ph warning",
			metrics: map[string]float64{"ph": 8.3},
			want:    models.TierWarning,
		},
		{
			name:    "low ph critical",
			metrics: map[string]float64{"ph": 6.4},
			want:    models.TierCritical,
		},
		{
			name:    "high ph critical",
			metrics: map[string]float64{"ph": 8.6},
			want:    models.TierCritical,
		},
		{
			name:    "turbidity warning",
			metrics: map[string]float64{"turbidity": 3.5},
			want:    models.TierWarning,
		},
		{
			name:    "turbidity critical",
			metrics: map[string]float64{"turbidity": 5.1},
			want:    models.TierCritical,
		},
		{
			name:    "chlorine warning",
			metrics: map[string]float64{"chlorine": 1.6},
			want:    models.TierWarning,
		},
		{
			name:    "chlorine critical",
			metrics: map[string]float64{"chlorine": 2.1},
			want:    models.TierCritical,
		},
		{
			name:    "warning plus critical resolves critical",
			metrics: map[string]float64{"ph": 6.7, "turbidity": 6.0},
			want:    models.TierCritical,
		},
		{
			name:    "temperature and level never raise tier",
			metrics: map[string]float64{"temperature": 90.0, "water_level": 0.0},
			want:    models.TierHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Classify(tt.metrics); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.metrics, got, tt.want)
			}
		})
	}
}

// Crossing a single critical bound must yield critical no matter how
// nominal the other metrics are.
func TestClassify_MonotonicSeverity(t *testing.T) {
	p := DefaultPolicy()

	for turb := 0.0; turb <= 10.0; turb += 0.5 {
		metrics := map[string]float64{"ph": 7.0, "chlorine": 1.0, "turbidity": turb}
		got := p.Classify(metrics)

		if turb > p.TurbidityCrit && got != models.TierCritical {
			t.Errorf("turbidity %.1f: got %q, want critical", turb, got)
		}
		if turb > p.TurbidityCrit && got == models.TierHealthy {
			t.Errorf("turbidity %.1f classified healthy past critical bound", turb)
		}
	}
}

func TestClassify_ConfigurableBounds(t *testing.T) {
	p := DefaultPolicy()
	p.ChlorineCrit = 2.5 // alternate deployment profile

	if got := p.Classify(map[string]float64{"chlorine": 2.2}); got != models.TierWarning {
		t.Errorf("chlorine 2.2 under relaxed profile = %q, want warning", got)
	}
	if got := p.Classify(map[string]float64{"chlorine": 2.6}); got != models.TierCritical {
		t.Errorf("chlorine 2.6 under relaxed profile = %q, want critical", got)
	}
}
