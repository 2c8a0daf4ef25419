package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// LedgerMetrics is returned by GET /v1/metrics/ledger.
type LedgerMetrics struct {
	BalanceApplies     int64 `json:"balanceApplies"`
	BalanceReverts     int64 `json:"balanceReverts"`
	TransfersCompleted int64 `json:"transfersCompleted"`
	TransfersFailed    int64 `json:"transfersFailed"`
	SweepProcessed     int64 `json:"sweepProcessed"`
	SweepErrors        int64 `json:"sweepErrors"`
	ChargesGenerated   int64 `json:"chargesGenerated"`
	ChargesPaid        int64 `json:"chargesPaid"`
}

// DeletedResponse is returned by bulk deletions.
type DeletedResponse struct {
	Deleted int `json:"deleted"`
}
