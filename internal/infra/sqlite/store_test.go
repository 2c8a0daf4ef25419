package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pf-ledger-go/internal/infra/sqlite"
	"github.com/boddenberg/pf-ledger-go/internal/port"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(sqlite.Options{
		Path:   sqlite.MemoryPath,
		Retry:  resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond},
		Logger: zap.NewNop(),
	})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestAccountRoundTripKeepsDecimalPrecision(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	err := s.CreateAccount(ctx, &domain.Account{
		ID: "a", UserID: "local", Name: "Checking",
		Balance: decimal.RequireFromString("1234.5678"), Currency: "EUR",
		CreatedAt: time.Now().UTC(),
	})
	assert.NoError(t, err)

	acc, err := s.GetAccount(ctx, "a")
	assert.NoError(t, err)
	assert.Equal(t, "1234.5678", acc.Balance.String())

	assert.NoError(t, s.SetAccountBalance(ctx, "a", decimal.RequireFromString("0.1")))
	acc, _ = s.GetAccount(ctx, "a")
	assert.Equal(t, "0.1", acc.Balance.String())

	var nf *domain.ErrNotFound
	assert.True(t, errors.As(s.SetAccountBalance(ctx, "missing", decimal.Zero), &nf))
}

func TestAtomicUnitRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	assert.NoError(t, s.CreateAccount(ctx, &domain.Account{ID: "a", UserID: "local", Balance: decimal.NewFromInt(100), Currency: "EUR"}))

	boom := errors.New("credit leg failed")
	err := s.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		if err := tx.SetAccountBalance(ctx, "a", decimal.NewFromInt(0)); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &domain.Transaction{
			ID: "t1", AccountID: "a", Amount: decimal.NewFromInt(-100),
			Type: domain.TransactionExpense, Category: "x", Date: domain.Date(2025, 1, 1), Origin: domain.OriginManual,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.IsError(t, err, boom)

	acc, err := s.GetAccount(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))

	_, err = s.GetTransaction(ctx, "t1")
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestTransactionQueries(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	assert.NoError(t, s.CreateAccount(ctx, &domain.Account{ID: "a", UserID: "local", Currency: "EUR"}))

	next := domain.Date(2025, 3, 1)
	end := domain.Date(2025, 12, 31)
	template := &domain.Transaction{
		ID: "tpl", AccountID: "a", Amount: decimal.NewFromInt(-50), Type: domain.TransactionExpense,
		Category: "rent", Date: domain.Date(2025, 2, 1), IsRecurring: true,
		RecurrenceCadence: domain.CadenceMonthly, RecurrenceEndDate: &end, NextOccurrence: &next,
		Origin: domain.OriginManual,
	}
	assert.NoError(t, s.InsertTransaction(ctx, template))

	due, err := s.ListDueTemplates(ctx, "local", domain.Date(2025, 3, 1))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(due))
	assert.True(t, due[0].NextOccurrence.Equal(next))
	assert.Equal(t, domain.CadenceMonthly, due[0].RecurrenceCadence)

	notYet, err := s.ListDueTemplates(ctx, "local", domain.Date(2025, 2, 28))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(notYet))

	instance := &domain.Transaction{
		ID: "i1", AccountID: "a", Amount: decimal.NewFromInt(-50), Type: domain.TransactionExpense,
		Category: "rent", Date: domain.Date(2025, 3, 1), ParentTransactionID: strPtr("tpl"), PeriodIndex: 1,
		Origin: domain.OriginRecurringInstance,
	}
	assert.NoError(t, s.InsertTransaction(ctx, instance))

	dup := *instance
	dup.ID = "i2"
	var conflict *domain.ErrConflict
	assert.True(t, errors.As(s.InsertTransaction(ctx, &dup), &conflict))

	found, err := s.FindInstance(ctx, "tpl", 1)
	assert.NoError(t, err)
	assert.Equal(t, "i1", found.ID)

	instance.Description = "march rent"
	assert.NoError(t, s.UpdateTransaction(ctx, instance))
	got, _ := s.GetTransaction(ctx, "i1")
	assert.Equal(t, "march rent", got.Description)

	children, err := s.ListTransactions(ctx, domain.TransactionFilter{ParentID: "tpl"})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(children))

	assert.NoError(t, s.DeleteTransaction(ctx, "i1"))
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(s.DeleteTransaction(ctx, "i1"), &nf))
}

func TestChargeQueries(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	yearly := domain.CadenceYearly
	head := &domain.AnnualCharge{
		ID: "c1", Name: "Insurance", Amount: decimal.NewFromInt(500), DueDate: domain.Date(2025, 6, 16),
		Type: domain.ChargeNormal, Recurrence: &yearly, SeriesID: "c1",
	}
	assert.NoError(t, s.InsertCharge(ctx, head))

	sibling := &domain.AnnualCharge{
		ID: "c2", Name: "Insurance (renamed)", Amount: decimal.NewFromInt(500), DueDate: domain.Date(2026, 6, 16),
		Type: domain.ChargeNormal, Recurrence: &yearly, SeriesID: "c1", PeriodIndex: 1,
	}
	assert.NoError(t, s.InsertCharge(ctx, sibling))

	again := *sibling
	again.ID = "c3"
	var conflict *domain.ErrConflict
	assert.True(t, errors.As(s.InsertCharge(ctx, &again), &conflict))

	found, err := s.FindChargeInSeries(ctx, "c1", 1)
	assert.NoError(t, err)
	assert.Equal(t, "c2", found.ID)
	assert.Equal(t, domain.CadenceYearly, *found.Recurrence)

	zakat := &domain.AnnualCharge{
		ID: "z", Name: "Zakat al-Fitr", Amount: decimal.NewFromInt(20), DueDate: domain.Date(2025, 3, 30),
		Type: domain.ChargeObligatory, IsIslamic: true, IslamicHolidayID: strPtr("zakat-al-fitr"),
		IslamicYear: 2025, SeriesID: "z",
	}
	assert.NoError(t, s.InsertCharge(ctx, zakat))
	dupZakat := *zakat
	dupZakat.ID, dupZakat.SeriesID = "z2", "z2"
	assert.True(t, errors.As(s.InsertCharge(ctx, &dupZakat), &conflict))

	in2025, err := s.ListCharges(ctx, domain.ChargeFilter{Year: 2025})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(in2025))
	assert.Equal(t, "z", in2025[0].ID)

	unpaid := false
	pending, err := s.ListCharges(ctx, domain.ChargeFilter{IsPaid: &unpaid, IslamicOnly: true})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(pending))

	n, err := s.DeleteIslamicCharges(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	got, err := s.GetIslamicSettings(ctx)
	assert.NoError(t, err)
	assert.True(t, got.GenerationAllowed)
	assert.True(t, got.IncludeRecommended)

	got.GenerationAllowed = false
	got.AmountOverrides = map[string]decimal.Decimal{"eid-al-adha": decimal.RequireFromString("350.50")}
	assert.NoError(t, s.SaveIslamicSettings(ctx, got))

	got.IncludeRecommended = false
	assert.NoError(t, s.SaveIslamicSettings(ctx, got))

	again, err := s.GetIslamicSettings(ctx)
	assert.NoError(t, err)
	assert.False(t, again.GenerationAllowed)
	assert.False(t, again.IncludeRecommended)
	assert.Equal(t, "350.5", again.AmountOverrides["eid-al-adha"].String())
}

func TestPing(t *testing.T) {
	s := openStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
