package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/service"
)

func TestApplyRevertAreInverse(t *testing.T) {
	balances := []decimal.Decimal{dec(0), dec(1000), decimal.RequireFromString("-42.17")}
	txs := []*domain.Transaction{
		{Type: domain.TransactionIncome, Amount: decimal.RequireFromString("200.55")},
		{Type: domain.TransactionExpense, Amount: decimal.RequireFromString("-200.55")},
		{Type: domain.TransactionExpense, Amount: decimal.RequireFromString("75")},
	}
	for _, b := range balances {
		for _, tx := range txs {
			if got := service.RevertEffect(service.ApplyEffect(b, tx), tx); !got.Equal(b) {
				t.Errorf("revert(apply(%s, %s %s)) = %s", b, tx.Type, tx.Amount, got)
			}
		}
	}

	if got := service.Effect(txs[2]); !got.Equal(dec(-75)) {
		t.Errorf("expense effect must be negative, got %s", got)
	}
}

func TestCreateAccount_OpeningBalanceIsBooked(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Checking", 1000)

	if acc.Currency != service.DefaultCurrency {
		t.Errorf("expected default currency, got %s", acc.Currency)
	}
	assertBalance(t, f, acc.ID, 1000)

	txs, err := f.ledger.ListTransactions(context.Background(), domain.TransactionFilter{AccountID: acc.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 || txs[0].Category != domain.CategoryOpeningBalance {
		t.Fatalf("expected one opening balance transaction, got %+v", txs)
	}
}

func TestCreateAccount_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.CreateAccount(context.Background(), &domain.CreateAccountRequest{UserID: "local"})
	if v := asValidation(t, err); v.Field != "name" {
		t.Errorf("expected field name, got %s", v.Field)
	}
	_, err = f.ledger.CreateAccount(context.Background(), &domain.CreateAccountRequest{UserID: "local", Name: "x", Currency: "EURO"})
	if v := asValidation(t, err); v.Field != "currency" {
		t.Errorf("expected field currency, got %s", v.Field)
	}
}

func TestScenario_CreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "Checking", 1000)

	tx, err := f.ledger.CreateTransaction(ctx, &domain.CreateTransactionRequest{
		AccountID: acc.ID,
		Amount:    dec(200),
		Type:      domain.TransactionExpense,
		Category:  "groceries",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !tx.Amount.Equal(dec(-200)) {
		t.Errorf("expense amount must be stored negative, got %s", tx.Amount)
	}
	if tx.Origin != domain.OriginManual {
		t.Errorf("expected manual origin, got %s", tx.Origin)
	}
	if !tx.Date.Equal(domain.Date(2025, 6, 16)) {
		t.Errorf("expected default date today, got %s", tx.Date)
	}
	assertBalance(t, f, acc.ID, 800)

	if _, err := f.ledger.UpdateTransaction(ctx, tx.ID, &domain.TransactionPatch{Amount: ptr(dec(-150))}); err != nil {
		t.Fatalf("update: %v", err)
	}
	assertBalance(t, f, acc.ID, 850)

	if err := f.ledger.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertBalance(t, f, acc.ID, 1000)

	_, err = f.ledger.GetTransactionByID(ctx, tx.ID)
	assertNotFound(t, err)
}

func TestUpdateTransaction_TypeFlipAndAccountMove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.account(t, "A", 500)
	b := f.account(t, "B", 0)

	tx, err := f.ledger.CreateTransaction(ctx, &domain.CreateTransactionRequest{
		AccountID: a.ID, Amount: dec(100), Type: domain.TransactionExpense, Category: "rent",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertBalance(t, f, a.ID, 400)

	updated, err := f.ledger.UpdateTransaction(ctx, tx.ID, &domain.TransactionPatch{
		Type:      ptr(domain.TransactionIncome),
		AccountID: ptr(b.ID),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Amount.Equal(dec(100)) {
		t.Errorf("income amount must be positive, got %s", updated.Amount)
	}
	assertBalance(t, f, a.ID, 500)
	assertBalance(t, f, b.ID, 100)
}

func TestUpdateTransaction_UnknownAccountLeavesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.account(t, "A", 500)
	tx, err := f.ledger.CreateTransaction(ctx, &domain.CreateTransactionRequest{
		AccountID: a.ID, Amount: dec(100), Type: domain.TransactionExpense, Category: "rent",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.ledger.UpdateTransaction(ctx, tx.ID, &domain.TransactionPatch{AccountID: ptr("missing")})
	assertNotFound(t, err)
	assertBalance(t, f, a.ID, 400)
}

func TestTemplateNeutrality(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "Checking", 1000)

	tpl, err := f.ledger.CreateTransaction(ctx, &domain.CreateTransactionRequest{
		AccountID:         acc.ID,
		Amount:            dec(50),
		Type:              domain.TransactionExpense,
		Category:          "subscriptions",
		IsRecurring:       true,
		RecurrenceCadence: domain.CadenceMonthly,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	assertBalance(t, f, acc.ID, 1000)
	if tpl.NextOccurrence == nil || !tpl.NextOccurrence.Equal(tpl.Date) {
		t.Errorf("template must start at its own date, got %v", tpl.NextOccurrence)
	}

	if _, err := f.ledger.UpdateTransaction(ctx, tpl.ID, &domain.TransactionPatch{Amount: ptr(dec(80))}); err != nil {
		t.Fatalf("update template: %v", err)
	}
	assertBalance(t, f, acc.ID, 1000)

	if err := f.ledger.DeleteTransaction(ctx, tpl.ID); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	assertBalance(t, f, acc.ID, 1000)
}

func TestUpdateTransaction_TemplateToggle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "Checking", 1000)

	tx, err := f.ledger.CreateTransaction(ctx, &domain.CreateTransactionRequest{
		AccountID: acc.ID, Amount: dec(50), Type: domain.TransactionExpense, Category: "gym",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertBalance(t, f, acc.ID, 950)

	tpl, err := f.ledger.UpdateTransaction(ctx, tx.ID, &domain.TransactionPatch{
		IsRecurring:       ptr(true),
		RecurrenceCadence: ptr(domain.CadenceMonthly),
	})
	if err != nil {
		t.Fatalf("make template: %v", err)
	}
	if tpl.NextOccurrence == nil {
		t.Fatal("template must have a next occurrence")
	}
	assertBalance(t, f, acc.ID, 1000)

	plain, err := f.ledger.UpdateTransaction(ctx, tx.ID, &domain.TransactionPatch{IsRecurring: ptr(false)})
	if err != nil {
		t.Fatalf("make plain: %v", err)
	}
	if plain.NextOccurrence != nil || plain.RecurrenceCadence != "" {
		t.Errorf("plain transaction must not carry recurrence fields: %+v", plain)
	}
	assertBalance(t, f, acc.ID, 950)
}

func TestCreateTransaction_Validation(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Checking", 0)

	tests := []struct {
		name  string
		req   domain.CreateTransactionRequest
		field string
	}{
		{"zero amount", domain.CreateTransactionRequest{AccountID: acc.ID, Type: domain.TransactionIncome, Category: "x"}, "amount"},
		{"bad type", domain.CreateTransactionRequest{AccountID: acc.ID, Amount: dec(1), Type: "refund", Category: "x"}, "type"},
		{"missing category", domain.CreateTransactionRequest{AccountID: acc.ID, Amount: dec(1), Type: domain.TransactionIncome}, "category"},
		{"quarterly template", domain.CreateTransactionRequest{
			AccountID: acc.ID, Amount: dec(1), Type: domain.TransactionIncome, Category: "x",
			IsRecurring: true, RecurrenceCadence: domain.CadenceQuarterly,
		}, "recurrence_cadence"},
		{"cadence without template", domain.CreateTransactionRequest{
			AccountID: acc.ID, Amount: dec(1), Type: domain.TransactionIncome, Category: "x",
			RecurrenceCadence: domain.CadenceMonthly,
		}, "recurrence_cadence"},
		{"end before start", domain.CreateTransactionRequest{
			AccountID: acc.ID, Amount: dec(1), Type: domain.TransactionIncome, Category: "x",
			Date: ptr(domain.Date(2025, 6, 1)), IsRecurring: true, RecurrenceCadence: domain.CadenceMonthly,
			RecurrenceEndDate: ptr(domain.Date(2025, 5, 1)),
		}, "recurrence_end_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.ledger.CreateTransaction(context.Background(), &req)
			if v := asValidation(t, err); v.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, v.Field)
			}
		})
	}
	assertBalance(t, f, acc.ID, 0)
}

func TestCreateTransaction_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.CreateTransaction(context.Background(), &domain.CreateTransactionRequest{
		AccountID: "missing", Amount: dec(10), Type: domain.TransactionIncome, Category: "salary",
	})
	assertNotFound(t, err)
}

func TestListTransactions_RejectsInvertedRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.ListTransactions(context.Background(), domain.TransactionFilter{
		From: ptr(domain.Date(2025, 6, 2)),
		To:   ptr(domain.Date(2025, 6, 1)),
	})
	if v := asValidation(t, err); v.Field != "from" {
		t.Errorf("expected field from, got %s", v.Field)
	}
}

func TestMetricsCountBalanceMutations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "Checking", 100)

	tx, err := f.ledger.CreateTransaction(ctx, &domain.CreateTransactionRequest{
		AccountID: acc.ID, Amount: dec(10), Type: domain.TransactionExpense, Category: "x",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.ledger.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	snap := f.metrics.Snapshot()
	if snap.BalanceApplies != 2 || snap.BalanceReverts != 1 {
		t.Errorf("expected 2 applies and 1 revert, got %+v", snap)
	}
}
