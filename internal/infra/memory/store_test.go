package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/memory"
	"github.com/boddenberg/pf-ledger-go/internal/port"
)

func strPtr(s string) *string { return &s }

func seedAccount(t *testing.T, s *memory.Store, id string, balance int64) {
	t.Helper()
	err := s.CreateAccount(context.Background(), &domain.Account{
		ID: id, UserID: "local", Name: id, Balance: decimal.NewFromInt(balance), Currency: "EUR",
	})
	assert.NoError(t, err)
}

func TestAtomicUnitRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedAccount(t, s, "a", 100)

	boom := errors.New("boom")
	err := s.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		if err := tx.SetAccountBalance(ctx, "a", decimal.NewFromInt(50)); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &domain.Transaction{ID: "t1", AccountID: "a"}); err != nil {
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

func TestAtomicUnitRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedAccount(t, s, "a", 100)

	func() {
		defer func() { _ = recover() }()
		_ = s.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
			_ = tx.SetAccountBalance(ctx, "a", decimal.Zero)
			panic("unexpected")
		})
	}()

	acc, err := s.GetAccount(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))
}

func TestAtomicUnitCommits(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedAccount(t, s, "a", 100)

	err := s.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		return tx.SetAccountBalance(ctx, "a", decimal.NewFromInt(75))
	})
	assert.NoError(t, err)

	acc, _ := s.GetAccount(ctx, "a")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(75)))
}

func TestInstanceUniqueness(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedAccount(t, s, "a", 0)

	first := &domain.Transaction{ID: "i1", AccountID: "a", ParentTransactionID: strPtr("tpl"), PeriodIndex: 1}
	assert.NoError(t, s.InsertTransaction(ctx, first))

	dup := &domain.Transaction{ID: "i2", AccountID: "a", ParentTransactionID: strPtr("tpl"), PeriodIndex: 1}
	err := s.InsertTransaction(ctx, dup)
	var conflict *domain.ErrConflict
	assert.True(t, errors.As(err, &conflict))

	got, err := s.FindInstance(ctx, "tpl", 1)
	assert.NoError(t, err)
	assert.Equal(t, "i1", got.ID)
}

func TestChargeKeys(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	head := &domain.AnnualCharge{ID: "c1", Name: "Insurance", SeriesID: "c1", DueDate: domain.Date(2025, 6, 16)}
	assert.NoError(t, s.InsertCharge(ctx, head))

	renamed := &domain.AnnualCharge{ID: "c2", Name: "Renamed", SeriesID: "c1", DueDate: domain.Date(2025, 6, 16)}
	var conflict *domain.ErrConflict
	assert.True(t, errors.As(s.InsertCharge(ctx, renamed), &conflict))

	zakat := &domain.AnnualCharge{ID: "z1", SeriesID: "z1", IsIslamic: true, IslamicHolidayID: strPtr("zakat-al-fitr"), IslamicYear: 2025}
	assert.NoError(t, s.InsertCharge(ctx, zakat))
	again := &domain.AnnualCharge{ID: "z2", SeriesID: "z2", IsIslamic: true, IslamicHolidayID: strPtr("zakat-al-fitr"), IslamicYear: 2025}
	assert.True(t, errors.As(s.InsertCharge(ctx, again), &conflict))

	found, err := s.FindIslamicCharge(ctx, "zakat-al-fitr", 2025)
	assert.NoError(t, err)
	assert.Equal(t, "z1", found.ID)

	n, err := s.DeleteIslamicCharges(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	rest, err := s.ListCharges(ctx, domain.ChargeFilter{})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(rest))
}

func TestListTransactionsFilter(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedAccount(t, s, "a", 0)
	seedAccount(t, s, "b", 0)

	rows := []domain.Transaction{
		{ID: "1", AccountID: "a", Date: domain.Date(2025, 1, 10), Origin: domain.OriginManual},
		{ID: "2", AccountID: "a", Date: domain.Date(2025, 2, 10), Origin: domain.OriginTransfer, TransferID: strPtr("x")},
		{ID: "3", AccountID: "b", Date: domain.Date(2025, 2, 10), Origin: domain.OriginTransfer, TransferID: strPtr("x")},
		{ID: "4", AccountID: "a", Date: domain.Date(2025, 3, 10), IsRecurring: true, Origin: domain.OriginManual},
	}
	for i := range rows {
		assert.NoError(t, s.InsertTransaction(ctx, &rows[i]))
	}

	byAccount, _ := s.ListTransactions(ctx, domain.TransactionFilter{AccountID: "a"})
	assert.Equal(t, 3, len(byAccount))
	assert.Equal(t, "1", byAccount[0].ID)

	from, to := domain.Date(2025, 2, 1), domain.Date(2025, 2, 28)
	inFeb, _ := s.ListTransactions(ctx, domain.TransactionFilter{From: &from, To: &to})
	assert.Equal(t, 2, len(inFeb))

	templates, _ := s.ListTransactions(ctx, domain.TransactionFilter{TemplatesOnly: true})
	assert.Equal(t, 1, len(templates))

	legs, _ := s.ListTransferLegs(ctx, "x")
	assert.Equal(t, 2, len(legs))
}

func TestSettingsDefaultAndSave(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	got, err := s.GetIslamicSettings(ctx)
	assert.NoError(t, err)
	assert.True(t, got.GenerationAllowed)

	got.GenerationAllowed = false
	got.AmountOverrides = map[string]decimal.Decimal{"ashura": decimal.NewFromInt(10)}
	assert.NoError(t, s.SaveIslamicSettings(ctx, got))

	// mutating the caller's copy must not leak into the store
	got.AmountOverrides["ashura"] = decimal.NewFromInt(99)

	again, err := s.GetIslamicSettings(ctx)
	assert.NoError(t, err)
	assert.False(t, again.GenerationAllowed)
	assert.True(t, again.AmountOverrides["ashura"].Equal(decimal.NewFromInt(10)))
}
