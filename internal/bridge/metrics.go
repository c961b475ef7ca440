package bridge

import "github.com/prometheus/client_golang/prometheus"

var commandsHandled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "godaikin_bridge_commands_total",
		Help: "MQTT commands handled by command and result.",
	},
	[]string{"command", "result"},
)

// MetricsCollectors returns the collectors this package exports.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{commandsHandled}
}
