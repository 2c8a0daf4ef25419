package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/calendar"
	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/memory"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pf-ledger-go/internal/port"
	"github.com/boddenberg/pf-ledger-go/internal/service"
)

// fixedNow is the wall clock of every test: 2025-06-16 10:00 UTC.
var fixedNow = time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store       port.LedgerStore
	metrics     *observability.Metrics
	ledger      *service.LedgerService
	recurring   *service.RecurrenceService
	obligations *service.ObligationService
	islamic     *service.IslamicService
	transfers   *service.TransferService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.New())
}

func newFixtureWithStore(t *testing.T, store port.LedgerStore) *fixture {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	ledger := service.NewLedgerService(store, metrics, logger).WithClock(func() time.Time { return fixedNow })
	return &fixture{
		store:       store,
		metrics:     metrics,
		ledger:      ledger,
		recurring:   service.NewRecurrenceService(store, ledger, metrics, logger),
		obligations: service.NewObligationService(store, ledger, metrics, logger),
		islamic:     service.NewIslamicService(store, ledger, calendar.NewResolver(), metrics, logger),
		transfers:   service.NewTransferService(store, ledger, metrics, logger),
	}
}

func (f *fixture) account(t *testing.T, name string, opening int64) *domain.Account {
	t.Helper()
	acc, err := f.ledger.CreateAccount(context.Background(), &domain.CreateAccountRequest{
		UserID:         "local",
		Name:           name,
		OpeningBalance: decimal.NewFromInt(opening),
	})
	if err != nil {
		t.Fatalf("create account %s: %v", name, err)
	}
	return acc
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	acc, err := f.store.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get account %s: %v", accountID, err)
	}
	return acc.Balance
}

func assertBalance(t *testing.T, f *fixture, accountID string, want int64) {
	t.Helper()
	if got := f.balance(t, accountID); !got.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("balance of %s: expected %d, got %s", accountID, want, got)
	}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ptr[T any](v T) *T { return &v }

func asValidation(t *testing.T, err error) *domain.ErrValidation {
	t.Helper()
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	return verr
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

// failingStore injects a failure into the n-th InsertTransaction of every
// atomic unit.
type failingStore struct {
	*memory.Store
	failOnInsert int
}

func (s *failingStore) WithAtomicUnit(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	return s.Store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		return fn(ctx, &failingTx{LedgerTx: tx, failOn: s.failOnInsert})
	})
}

var errInjected = errors.New("injected failure")

type failingTx struct {
	port.LedgerTx
	inserts int
	failOn  int
}

func (t *failingTx) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	t.inserts++
	if t.inserts == t.failOn {
		return errInjected
	}
	return t.LedgerTx.InsertTransaction(ctx, tx)
}
