package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pf-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pf-ledger-go/internal/service"
)

var tracer = otel.Tracer("handler")

// Pinger is the health probe of the backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles every ledger service the router exposes.
// Nil services leave their routes unregistered.
type Services struct {
	Ledger      *service.LedgerService
	Recurring   *service.RecurrenceService
	Obligations *service.ObligationService
	Islamic     *service.IslamicService
	Calendar    *service.CalendarService
	Transfers   *service.TransferService
	Store       Pinger
}

// Options tunes the router.
type Options struct {
	// AuthSecret enables HS256 bearer auth on /v1 when non-empty.
	AuthSecret string
	// LocalUserID is the user every request acts as when auth is off.
	LocalUserID string
	// MaxConcurrentWrites bounds in-flight mutating requests; 0 disables.
	MaxConcurrentWrites int
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	if opts.LocalUserID == "" {
		opts.LocalUserID = "local"
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(observability.MetricsMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if opts.AuthSecret != "" {
			r.Use(JWTAuthMiddleware([]byte(opts.AuthSecret), logger))
		}
		if opts.MaxConcurrentWrites > 0 {
			r.Use(BulkheadMiddleware(resilience.NewBulkhead(opts.MaxConcurrentWrites), logger))
		}

		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics))

		// =============================================
		// Accounts & transactions
		// =============================================
		if svc.Ledger != nil {
			r.Post("/accounts", createAccountHandler(svc.Ledger, opts.LocalUserID, logger))
			r.Get("/accounts", listAccountsHandler(svc.Ledger, opts.LocalUserID, logger))
			r.Get("/accounts/{accountId}", getAccountHandler(svc.Ledger, logger))
			r.Get("/accounts/{accountId}/transactions", listAccountTransactionsHandler(svc.Ledger, logger))

			r.Post("/transactions", createTransactionHandler(svc.Ledger, logger))
			r.Get("/transactions", listTransactionsHandler(svc.Ledger, opts.LocalUserID, logger))
			r.Get("/transactions/{id}", getTransactionHandler(svc.Ledger, logger))
			r.Patch("/transactions/{id}", updateTransactionHandler(svc.Ledger, logger))
			r.Delete("/transactions/{id}", deleteTransactionHandler(svc.Ledger, logger))
		}

		// =============================================
		// Recurring templates
		// =============================================
		if svc.Recurring != nil {
			r.Post("/recurring/process", processRecurringHandler(svc.Recurring, opts.LocalUserID, logger))
			r.Get("/transactions/{id}/instances", listInstancesHandler(svc.Recurring, logger))
		}

		// =============================================
		// Annual charges
		// =============================================
		if svc.Obligations != nil && svc.Islamic != nil {
			r.Post("/charges", createChargeHandler(svc.Obligations, logger))
			r.Get("/charges", listChargesHandler(svc.Obligations, svc.Islamic, logger))
			r.Post("/charges/next-year", nextYearChargesHandler(svc.Obligations, logger))
			r.Post("/charges/process-due", processDueChargesHandler(svc.Obligations, svc.Islamic, logger))
			r.Get("/charges/{id}", getChargeHandler(svc.Obligations, logger))
			r.Patch("/charges/{id}", updateChargeHandler(svc.Obligations, logger))
			r.Delete("/charges/{id}", deleteChargeHandler(svc.Obligations, logger))
			r.Get("/charges/{id}/can-pay", canPayChargeHandler(svc.Obligations, svc.Islamic, logger))
			r.Post("/charges/{id}/pay", payChargeHandler(svc.Obligations, svc.Islamic, logger))
			r.Post("/charges/{id}/toggle", togglePaidHandler(svc.Obligations, logger))
			r.Put("/charges/{id}/recurrence", enableChargeRecurrenceHandler(svc.Obligations, logger))
			r.Delete("/charges/{id}/recurrence", disableChargeRecurrenceHandler(svc.Obligations, logger))
		}

		// =============================================
		// Islamic obligations
		// =============================================
		if svc.Islamic != nil {
			r.Get("/islamic/settings", getIslamicSettingsHandler(svc.Islamic, logger))
			r.Put("/islamic/settings", saveIslamicSettingsHandler(svc.Islamic, logger))
			r.Put("/islamic/generation", setGenerationAllowedHandler(svc.Islamic, logger))
			r.Post("/islamic/generate", generateIslamicChargesHandler(svc.Islamic, logger))
			r.Get("/islamic/charges", listIslamicChargesHandler(svc.Islamic, logger))
			r.Delete("/islamic/charges", deleteIslamicChargesHandler(svc.Islamic, logger))
		}

		// =============================================
		// Hijri calendar
		// =============================================
		if svc.Calendar != nil {
			r.Get("/calendar/holidays", listHolidaysHandler(svc.Calendar))
			r.Get("/calendar/months", listMonthNamesHandler(svc.Calendar))
			r.Get("/calendar/resolve", resolveDateHandler(svc.Calendar, logger))
			r.Get("/calendar/is-holiday", isHolidayHandler(svc.Calendar, logger))
			r.Post("/calendar/sync", syncCalendarHandler(svc.Calendar, logger))
		}

		// =============================================
		// Transfers
		// =============================================
		if svc.Transfers != nil {
			r.Post("/transfers", transferHandler(svc.Transfers.ExecuteTransfer, "POST /v1/transfers", logger))
			r.Post("/transfers/savings", transferHandler(svc.Transfers.ExecuteSavingsTransfer, "POST /v1/transfers/savings", logger))
			r.Post("/transfers/savings/refund", transferHandler(svc.Transfers.ExecuteSavingsRefund, "POST /v1/transfers/savings/refund", logger))
			r.Get("/transfers/validate", validateTransferHandler(svc.Transfers, logger))
		}
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "ledger-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				logger.Warn("health: store ping failed", zap.Error(err))
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		code := http.StatusOK
		if overallStatus == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func ledgerMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
