package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	balanceMutations *prometheus.CounterVec
	transfers        *prometheus.CounterVec
	sweepItems       *prometheus.CounterVec
	chargesGenerated *prometheus.CounterVec
	chargesPaid      prometheus.Counter
	externalErrors   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		balanceMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_mutations_total",
				Help: "Balance effects applied or reverted.",
			},
			[]string{"kind"},
		),
		transfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transfers_total",
				Help: "Two-account transfers by outcome.",
			},
			[]string{"outcome"},
		),
		sweepItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_sweep_items_total",
				Help: "Items handled by the recurring and auto-deduct sweeps.",
			},
			[]string{"sweep", "outcome"},
		),
		chargesGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_charges_generated_total",
				Help: "Annual charges generated by source.",
			},
			[]string{"source"},
		),
		chargesPaid: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_charges_paid_total",
				Help: "Annual charges paid.",
			},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrBalanceApply counts one applied balance effect.
func (m *Metrics) IncrBalanceApply() {
	m.balanceMutations.WithLabelValues("apply").Inc()
}

// IncrBalanceRevert counts one reverted balance effect.
func (m *Metrics) IncrBalanceRevert() {
	m.balanceMutations.WithLabelValues("revert").Inc()
}

// IncrTransfer counts a transfer by outcome ("completed" or "failed").
func (m *Metrics) IncrTransfer(outcome string) {
	m.transfers.WithLabelValues(outcome).Inc()
}

// RecordSweep adds a sweep's aggregate result.
func (m *Metrics) RecordSweep(sweep string, processed, failed int) {
	m.sweepItems.WithLabelValues(sweep, "processed").Add(float64(processed))
	m.sweepItems.WithLabelValues(sweep, "error").Add(float64(failed))
}

// AddChargesGenerated counts generated charges ("islamic" or "sibling").
func (m *Metrics) AddChargesGenerated(source string, n int) {
	m.chargesGenerated.WithLabelValues(source).Add(float64(n))
}

// IncrChargePaid counts one paid charge.
func (m *Metrics) IncrChargePaid() {
	m.chargesPaid.Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// Snapshot returns the cumulative ledger counters for GET /v1/metrics/ledger.
func (m *Metrics) Snapshot() *domain.LedgerMetrics {
	sweepProcessed := getCounterValue(m.sweepItems.WithLabelValues("recurring", "processed")) +
		getCounterValue(m.sweepItems.WithLabelValues("auto_deduct", "processed"))
	sweepErrors := getCounterValue(m.sweepItems.WithLabelValues("recurring", "error")) +
		getCounterValue(m.sweepItems.WithLabelValues("auto_deduct", "error"))
	generated := getCounterValue(m.chargesGenerated.WithLabelValues("islamic")) +
		getCounterValue(m.chargesGenerated.WithLabelValues("sibling"))

	return &domain.LedgerMetrics{
		BalanceApplies:     int64(getCounterValue(m.balanceMutations.WithLabelValues("apply"))),
		BalanceReverts:     int64(getCounterValue(m.balanceMutations.WithLabelValues("revert"))),
		TransfersCompleted: int64(getCounterValue(m.transfers.WithLabelValues("completed"))),
		TransfersFailed:    int64(getCounterValue(m.transfers.WithLabelValues("failed"))),
		SweepProcessed:     int64(sweepProcessed),
		SweepErrors:        int64(sweepErrors),
		ChargesGenerated:   int64(generated),
		ChargesPaid:        int64(getCounterValue(m.chargesPaid)),
	}
}

// getCounterValue extracts the current float64 value of a counter.
func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
