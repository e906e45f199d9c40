package crediting

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewards_crediting_requests_total",
		Help: "Calls to the crediting service, by outcome.",
	}, []string{"outcome"})
	breakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rewards_crediting_breaker_state",
		Help: "Crediting circuit breaker state: 0 closed, 1 half-open, 2 open.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, breakerState)
}
