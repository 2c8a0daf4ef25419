package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/app"
	"github.com/boddenberg/pf-ledger-go/internal/config"
	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/handler"
)

func testConfig(t *testing.T, tableURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Port:            8080,
		LogLevel:        "error",
		StoreDriver:     "sqlite",
		DatabasePath:    filepath.Join(t.TempDir(), "ledger.db"),
		LocalUserID:     "local",
		SweepInterval:   time.Hour,
		HTTPTimeout:     5 * time.Second,
		MaxRetries:      1,
		InitialBackoff:  10 * time.Millisecond,
		MaxConcurrency:  10,
		CacheTTL:        time.Minute,
		HijriTableURL:   tableURL,
		HijriTableYears: []int{2030},
	}
}

// TestIntegration_FullFlow runs the server wiring over sqlite with a mock
// Hijri table source.
func TestIntegration_FullFlow(t *testing.T) {
	// --- Mock Hijri table ---
	var tableCalls atomic.Int32
	tableServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tableCalls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/2030") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]domain.HijriTableEntry{
			{HijriMonth: 10, HijriDay: 1, Date: "2030-02-07"},
		})
	}))
	defer tableServer.Close()

	// --- Build ledger ---
	a, err := app.New(testConfig(t, tableServer.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.Close()

	if err := a.SyncCalendar(context.Background()); err != nil {
		t.Fatalf("sync calendar: %v", err)
	}
	if tableCalls.Load() == 0 {
		t.Fatal("expected the table source to be queried")
	}

	router := handler.NewRouter(a.Services(), handler.Options{LocalUserID: "local"}, a.Metrics, zap.NewNop())

	// --- Execute requests ---
	post := func(path string, body any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := post("/v1/accounts", map[string]any{"name": "Checking", "opening_balance": "1000"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var checking domain.Account
	if err := json.NewDecoder(rec.Body).Decode(&checking); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	rec = post("/v1/accounts", map[string]any{"name": "Savings"})
	var savings domain.Account
	if err := json.NewDecoder(rec.Body).Decode(&savings); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	rec = post("/v1/transfers/savings", map[string]any{
		"from_account_id": checking.ID,
		"to_account_id":   savings.ID,
		"amount":          "250.50",
		"goal_name":       "Hajj",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	// --- Assertions ---
	acc, err := a.Ledger.GetAccount(context.Background(), checking.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !acc.Balance.Equal(decimal.RequireFromString("749.50")) {
		t.Errorf("expected 749.5, got %s", acc.Balance)
	}

	rec = get("/v1/calendar/resolve?month=10&day=1&year=2030")
	if !strings.Contains(rec.Body.String(), "2030-02-07") {
		t.Errorf("expected the synced table entry, got %s", rec.Body.String())
	}

	rec = get("/healthz")
	var health domain.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy sqlite store, got %+v", health)
	}
}

func TestNew_MemoryDriverWithoutTableSource(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.StoreDriver = "memory"

	a, err := app.New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.Close()

	if err := a.SyncCalendar(context.Background()); err != nil {
		t.Errorf("sync without a source must be a no-op, got %v", err)
	}

	report := a.Scheduler().RunOnce(context.Background())
	if report.Recurring.Processed != 0 || report.AutoDeduct.Processed != 0 {
		t.Errorf("empty ledger must sweep nothing: %+v %+v", report.Recurring, report.AutoDeduct)
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.StoreDriver = "postgres"

	if _, err := app.New(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}

func TestNew_NonPositiveCacheTTLDoesNotPanic(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.StoreDriver = "memory"
	cfg.CacheTTL = 0

	a, err := app.New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.Close()

	time.Sleep(50 * time.Millisecond)
	if _, err := a.Calendar.Resolve(context.Background(), 10, 1, 2025); err != nil {
		t.Fatalf("resolve without cache: %v", err)
	}
}
