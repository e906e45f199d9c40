package award

import "github.com/prometheus/client_golang/prometheus"

var (
	issuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewards_awards_issued_total",
		Help: "Awards issued, by setting class.",
	}, []string{"kind"})
	expiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewards_awards_expired_total",
		Help: "Pending awards moved to expired by the sweep.",
	})
)

func init() {
	prometheus.MustRegister(issuedTotal, expiredTotal)
}

// RecordIssued counts a committed issuance.
func RecordIssued(a *Award) {
	kind := "milestone"
	if a.IssuanceDay != "" {
		kind = "daily"
	}
	issuedTotal.WithLabelValues(kind).Inc()
}
