package conn

import "github.com/prometheus/client_golang/prometheus"

var (
	channelState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tanksentry_channel_state",
		Help: "Current channel state (0=idle, 1=connecting, 2=connected, 3=reconnecting).",
	})
	reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tanksentry_channel_reconnects_total",
		Help: "Number of times an established channel was lost and re-entered reconnecting.",
	})
)

func init() {
	prometheus.MustRegister(channelState)
	prometheus.MustRegister(reconnectsTotal)
}

func stateValue(s State) float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateReconnecting:
		return 3
	default:
		return 0
	}
}
