package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
)

func TestMetricsSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrBalanceApply()
	m.IncrBalanceApply()
	m.IncrBalanceRevert()
	m.IncrTransfer("completed")
	m.IncrTransfer("failed")
	m.RecordSweep("recurring", 3, 1)
	m.RecordSweep("auto_deduct", 2, 0)
	m.AddChargesGenerated("islamic", 4)
	m.AddChargesGenerated("sibling", 1)
	m.IncrChargePaid()

	snap := m.Snapshot()
	if snap.BalanceApplies != 2 || snap.BalanceReverts != 1 {
		t.Errorf("unexpected balance counters: %+v", snap)
	}
	if snap.TransfersCompleted != 1 || snap.TransfersFailed != 1 {
		t.Errorf("unexpected transfer counters: %+v", snap)
	}
	if snap.SweepProcessed != 5 || snap.SweepErrors != 1 {
		t.Errorf("unexpected sweep counters: %+v", snap)
	}
	if snap.ChargesGenerated != 5 || snap.ChargesPaid != 1 {
		t.Errorf("unexpected charge counters: %+v", snap)
	}
}

func TestNewMetricsTwiceDoesNotPanic(t *testing.T) {
	_ = observability.NewMetrics()
	_ = observability.NewMetrics()
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	m := observability.NewMetrics()
	r := chi.NewRouter()
	r.Use(observability.MetricsMiddleware(m))
	r.Get("/v1/accounts/{accountId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/abc", nil))

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "ledger_request_duration_seconds" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetValue() == "GET /v1/accounts/{accountId}" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected duration observed under the route pattern")
	}
}

func TestInitTracerWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := observability.InitTracer(context.Background(), "", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestNewLoggerAcceptsUnknownLevel(t *testing.T) {
	logger := observability.NewLogger("verbose")
	if logger == nil {
		t.Fatal("expected logger")
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Error("unknown level should fall back to info")
	}
}

func TestTracingMiddlewareNamesSpanByRoutePattern(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(observability.TracingMiddleware)
	r.Get("/v1/charges/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"c1", "c2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/charges/"+id, nil))
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	for _, span := range spans {
		if span.Name() != "GET /v1/charges/{id}" {
			t.Errorf("expected span named after the route pattern, got %q", span.Name())
		}
	}
}
