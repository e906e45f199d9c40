package claim

import "github.com/prometheus/client_golang/prometheus"

var (
	claimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewards_claims_total",
		Help: "Claim attempts, by outcome.",
	}, []string{"outcome"})
	reconciledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewards_claims_reconciled_total",
		Help: "Dispatched claims examined by reconciliation, by outcome.",
	}, []string{"outcome"})
	invariantViolations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewards_invariant_violations_total",
		Help: "Ledger writes rejected after a won claim transition.",
	})
)

func init() {
	prometheus.MustRegister(claimsTotal, reconciledTotal, invariantViolations)
}
