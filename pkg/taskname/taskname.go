package taskname

const (
	// Award tasks
	AwardExpirySweep = "award:expiry:sweep"

	// Claim tasks
	ClaimReconcileStale = "claim:reconcile:stale"
	ClaimReconcileAward = "claim:reconcile:award"
)
