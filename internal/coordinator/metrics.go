package coordinator

import "github.com/prometheus/client_golang/prometheus"

var cycles = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "godaikin_refresh_cycles_total",
		Help: "Sync cycles by result.",
	},
	[]string{"result"},
)

// MetricsCollectors returns the collectors this package exports.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{cycles}
}
