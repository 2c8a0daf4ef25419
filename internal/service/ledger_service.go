// Package service provides the business logic layer (use cases).
// LedgerService is the only writer of account balances; every other service
// composes its balance-affecting helpers inside a store atomic unit.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pf-ledger-go/internal/port"
)

var ledgerTracer = otel.Tracer("service/ledger")

// DefaultCurrency is used when an account is created without one.
const DefaultCurrency = "EUR"

// LedgerService owns accounts and transactions and their balance effects.
type LedgerService struct {
	store   port.LedgerStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store port.LedgerStore, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// WithClock replaces the wall clock, for tests and the operator CLI.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// Today is the current calendar date in UTC.
func (s *LedgerService) Today() time.Time {
	return domain.DateOf(s.now())
}

// ============================================================
// Accounts
// ============================================================

// CreateAccount creates an account. A non-zero opening balance is booked as
// a regular transaction in the same unit, so the balance always equals the
// sum of its transaction effects.
func (s *LedgerService) CreateAccount(ctx context.Context, req *domain.CreateAccountRequest) (*domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateAccount")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "is required"}
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, &domain.ErrValidation{Field: "user_id", Message: "is required"}
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, &domain.ErrValidation{Field: "currency", Message: "must be a 3-letter ISO code"}
	}

	acc := &domain.Account{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Name:      strings.TrimSpace(req.Name),
		Balance:   decimal.Zero,
		Currency:  currency,
		CreatedAt: s.now().UTC(),
	}

	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		if err := tx.CreateAccount(ctx, acc); err != nil {
			return err
		}
		if req.OpeningBalance.IsZero() {
			return nil
		}
		typ := domain.TransactionIncome
		if req.OpeningBalance.IsNegative() {
			typ = domain.TransactionExpense
		}
		_, err := s.createInTx(ctx, tx, &domain.CreateTransactionRequest{
			AccountID:   acc.ID,
			Amount:      req.OpeningBalance,
			Type:        typ,
			Category:    domain.CategoryOpeningBalance,
			Description: "Opening balance",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		zap.String("account_id", acc.ID),
		zap.String("opening_balance", req.OpeningBalance.String()),
	)
	return s.store.GetAccount(ctx, acc.ID)
}

func (s *LedgerService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetAccount")
	defer span.End()

	return s.store.GetAccount(ctx, id)
}

func (s *LedgerService) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListAccounts")
	defer span.End()

	return s.store.ListAccounts(ctx, userID)
}

// ============================================================
// Transactions
// ============================================================

// CreateTransaction persists a transaction and, unless it is a template,
// applies its balance effect in the same atomic unit.
func (s *LedgerService) CreateTransaction(ctx context.Context, req *domain.CreateTransactionRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", req.AccountID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("create_transaction", time.Since(start)) }()

	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	var created *domain.Transaction
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		var err error
		created, err = s.createInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction created",
		zap.String("transaction_id", created.ID),
		zap.String("account_id", created.AccountID),
		zap.String("amount", created.Amount.String()),
		zap.Bool("template", created.IsRecurring),
	)
	return created, nil
}

func (s *LedgerService) GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetTransactionByID")
	defer span.End()

	return s.store.GetTransaction(ctx, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListTransactions")
	defer span.End()

	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, &domain.ErrValidation{Field: "from", Message: "must not be after 'to'"}
	}
	return s.store.ListTransactions(ctx, filter)
}

// UpdateTransaction reverts the row's current effect, applies the patch and
// re-applies the new effect. Transfer legs are read-only.
func (s *LedgerService) UpdateTransaction(ctx context.Context, id string, patch *domain.TransactionPatch) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.UpdateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	var updated *domain.Transaction
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		old, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if old.Origin.IsTransferLeg() {
			return &domain.ErrValidation{Field: "origin", Message: fmt.Sprintf("%s transactions are read-only", old.Origin)}
		}

		next, err := s.applyPatch(*old, patch)
		if err != nil {
			return err
		}
		if next.AccountID != old.AccountID {
			if _, err := tx.GetAccount(ctx, next.AccountID); err != nil {
				return err
			}
		}

		if old.AffectsBalance() {
			if err := s.revert(ctx, tx, old); err != nil {
				return err
			}
		}
		if err := tx.UpdateTransaction(ctx, &next); err != nil {
			return err
		}
		if next.AffectsBalance() {
			if err := s.apply(ctx, tx, &next); err != nil {
				return err
			}
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction updated",
		zap.String("transaction_id", updated.ID),
		zap.String("amount", updated.Amount.String()),
	)
	return updated, nil
}

// DeleteTransaction reverts the row's effect and deletes it. Deleting one leg
// of a transfer deletes both.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	var deleted int
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}

		rows := []domain.Transaction{*t}
		if t.Origin.IsTransferLeg() && t.TransferID != nil {
			if rows, err = tx.ListTransferLegs(ctx, *t.TransferID); err != nil {
				return err
			}
		}

		for i := range rows {
			if err := s.deleteInTx(ctx, tx, &rows[i]); err != nil {
				return err
			}
		}
		deleted = len(rows)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("transaction deleted", zap.String("transaction_id", id), zap.Int("rows", deleted))
	return nil
}

// ============================================================
// Balance primitives (used inside atomic units)
// ============================================================

// createInTx validates and inserts a transaction and applies its effect.
// Callers must already hold an atomic unit.
func (s *LedgerService) createInTx(ctx context.Context, tx port.LedgerTx, req *domain.CreateTransactionRequest) (*domain.Transaction, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}
	if _, err := tx.GetAccount(ctx, req.AccountID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	date := s.Today()
	if req.Date != nil {
		date = domain.DateOf(*req.Date)
	}
	origin := req.Origin
	if origin == "" {
		origin = domain.OriginManual
	}

	t := &domain.Transaction{
		ID:                  uuid.NewString(),
		AccountID:           req.AccountID,
		Amount:              signedAmount(req.Type, req.Amount),
		Type:                req.Type,
		Category:            strings.TrimSpace(req.Category),
		Description:         strings.TrimSpace(req.Description),
		Date:                date,
		IsRecurring:         req.IsRecurring,
		ParentTransactionID: req.ParentID,
		PeriodIndex:         req.PeriodIndex,
		Origin:              origin,
		TransferID:          req.TransferID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if t.IsRecurring {
		t.RecurrenceCadence = req.RecurrenceCadence
		t.RecurrenceEndDate = datePtr(req.RecurrenceEndDate)
		first := date
		t.NextOccurrence = &first
	}

	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}
	if t.AffectsBalance() {
		if err := s.apply(ctx, tx, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s *LedgerService) deleteInTx(ctx context.Context, tx port.LedgerTx, t *domain.Transaction) error {
	if t.AffectsBalance() {
		if err := s.revert(ctx, tx, t); err != nil {
			return err
		}
	}
	return tx.DeleteTransaction(ctx, t.ID)
}

// apply adds the transaction's effect (+|amount| income, -|amount| expense).
func (s *LedgerService) apply(ctx context.Context, tx port.LedgerTx, t *domain.Transaction) error {
	if err := s.shiftBalance(ctx, tx, t.AccountID, Effect(t)); err != nil {
		return err
	}
	s.metrics.IncrBalanceApply()
	return nil
}

// revert is the exact inverse of apply.
func (s *LedgerService) revert(ctx context.Context, tx port.LedgerTx, t *domain.Transaction) error {
	if err := s.shiftBalance(ctx, tx, t.AccountID, Effect(t).Neg()); err != nil {
		return err
	}
	s.metrics.IncrBalanceRevert()
	return nil
}

func (s *LedgerService) shiftBalance(ctx context.Context, tx port.LedgerTx, accountID string, delta decimal.Decimal) error {
	acc, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	return tx.SetAccountBalance(ctx, accountID, acc.Balance.Add(delta))
}

// Effect is the signed balance delta of a transaction.
func Effect(t *domain.Transaction) decimal.Decimal {
	if t.Type == domain.TransactionExpense {
		return t.Amount.Abs().Neg()
	}
	return t.Amount.Abs()
}

// ApplyEffect and RevertEffect are the pure forms of apply and revert.
func ApplyEffect(balance decimal.Decimal, t *domain.Transaction) decimal.Decimal {
	return balance.Add(Effect(t))
}

func RevertEffect(balance decimal.Decimal, t *domain.Transaction) decimal.Decimal {
	return balance.Sub(Effect(t))
}

func signedAmount(typ domain.TransactionType, amount decimal.Decimal) decimal.Decimal {
	if typ == domain.TransactionExpense {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

// ============================================================
// Validation
// ============================================================

func (s *LedgerService) validateCreate(req *domain.CreateTransactionRequest) error {
	if strings.TrimSpace(req.AccountID) == "" {
		return &domain.ErrValidation{Field: "account_id", Message: "is required"}
	}
	if req.Amount.IsZero() {
		return &domain.ErrValidation{Field: "amount", Message: "must not be zero"}
	}
	if !req.Type.Valid() {
		return &domain.ErrValidation{Field: "type", Message: "must be 'income' or 'expense'"}
	}
	if strings.TrimSpace(req.Category) == "" {
		return &domain.ErrValidation{Field: "category", Message: "is required"}
	}
	if req.IsRecurring {
		if !req.RecurrenceCadence.ValidForTransaction() {
			return &domain.ErrValidation{Field: "recurrence_cadence", Message: "must be daily, weekly, monthly or yearly"}
		}
		if req.RecurrenceEndDate != nil && req.Date != nil && domain.DateOf(*req.RecurrenceEndDate).Before(domain.DateOf(*req.Date)) {
			return &domain.ErrValidation{Field: "recurrence_end_date", Message: "must not be before the start date"}
		}
	} else if req.RecurrenceCadence != "" || req.RecurrenceEndDate != nil {
		return &domain.ErrValidation{Field: "recurrence_cadence", Message: "only allowed on recurring transactions"}
	}
	return nil
}

// applyPatch returns the patched copy of t, validated and normalized.
func (s *LedgerService) applyPatch(t domain.Transaction, p *domain.TransactionPatch) (domain.Transaction, error) {
	wasRecurring := t.IsRecurring

	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return t, &domain.ErrValidation{Field: "type", Message: "must be 'income' or 'expense'"}
		}
		t.Type = *p.Type
	}
	if p.Amount != nil {
		if p.Amount.IsZero() {
			return t, &domain.ErrValidation{Field: "amount", Message: "must not be zero"}
		}
		t.Amount = *p.Amount
	}
	t.Amount = signedAmount(t.Type, t.Amount)
	if p.Category != nil {
		if strings.TrimSpace(*p.Category) == "" {
			return t, &domain.ErrValidation{Field: "category", Message: "is required"}
		}
		t.Category = strings.TrimSpace(*p.Category)
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.Date != nil {
		t.Date = domain.DateOf(*p.Date)
	}
	if p.IsRecurring != nil {
		if *p.IsRecurring && t.ParentTransactionID != nil {
			return t, &domain.ErrValidation{Field: "is_recurring", Message: "a materialized instance cannot become a template"}
		}
		t.IsRecurring = *p.IsRecurring
	}
	if p.RecurrenceCadence != nil {
		t.RecurrenceCadence = *p.RecurrenceCadence
	}
	if p.RecurrenceEndDate != nil {
		t.RecurrenceEndDate = datePtr(p.RecurrenceEndDate)
	}
	if p.ClearEndDate {
		t.RecurrenceEndDate = nil
	}

	if t.IsRecurring {
		if !t.RecurrenceCadence.ValidForTransaction() {
			return t, &domain.ErrValidation{Field: "recurrence_cadence", Message: "must be daily, weekly, monthly or yearly"}
		}
		if t.RecurrenceEndDate != nil && t.RecurrenceEndDate.Before(t.Date) {
			return t, &domain.ErrValidation{Field: "recurrence_end_date", Message: "must not be before the start date"}
		}
		if !wasRecurring || t.NextOccurrence == nil {
			first := t.Date
			t.NextOccurrence = &first
		}
	} else {
		t.RecurrenceCadence = ""
		t.RecurrenceEndDate = nil
		t.NextOccurrence = nil
	}

	t.UpdatedAt = s.now().UTC()
	return t, nil
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.DateOf(*t)
	return &d
}
