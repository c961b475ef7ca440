package auth

import "github.com/prometheus/client_golang/prometheus"

var (
	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godaikin_auth_exchanges_total",
			Help: "Successful identity exchanges by grant",
		},
		[]string{"grant"},
	)
	exchangeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godaikin_auth_exchange_failures_total",
			Help: "Failed identity exchanges by grant",
		},
		[]string{"grant"},
	)
	tokenValid = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "godaikin_auth_token_valid",
			Help: "Session token validity (1=valid, 0=invalid)",
		},
	)
	statePersistOK = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "godaikin_auth_state_persist_ok",
			Help: "Session state persistence health (1=ok, 0=error)",
		},
	)
)

// MetricsCollectors returns the collectors owned by this package.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		exchanges,
		exchangeFailures,
		tokenValid,
		statePersistOK,
	}
}
