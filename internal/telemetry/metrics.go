package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	readingsClassified = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tanksentry_readings_classified_total",
		Help: "Sensor readings classified and fanned out to observers.",
	})
	alertsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tanksentry_alerts_accepted_total",
		Help: "Distinct alerts surfaced to observers.",
	})
	alertsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tanksentry_alerts_duplicate_total",
		Help: "Redelivered alerts absorbed by deduplication.",
	})
)

func init() {
	prometheus.MustRegister(readingsClassified)
	prometheus.MustRegister(alertsAccepted)
	prometheus.MustRegister(alertsDuplicate)
}
