package moldproof

import "github.com/prometheus/client_golang/prometheus"

var (
	starts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "godaikin_moldproof_starts_total",
			Help: "Mold-proof runs started.",
		},
	)
	outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godaikin_moldproof_outcomes_total",
			Help: "Mold-proof run terminations by outcome.",
		},
		[]string{"outcome"},
	)
)

// MetricsCollectors returns the collectors this package exports.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{starts, outcomes}
}
