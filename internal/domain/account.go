package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Accounts
// ============================================================

// Account is a balance-carrying account of the local user.
// Balance is only ever written by the ledger service.
type Account struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateAccountRequest is the body for POST /v1/accounts.
type CreateAccountRequest struct {
	UserID         string          `json:"user_id"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// CategoryOpeningBalance tags the income that seeds a new account.
const CategoryOpeningBalance = "opening_balance"

// ============================================================
// Transactions
// ============================================================

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// TransactionOrigin records which flow created a transaction. It is set once
// at creation and never inferred from free-text fields.
type TransactionOrigin string

const (
	OriginManual              TransactionOrigin = "manual"
	OriginTransfer            TransactionOrigin = "transfer"
	OriginSavingsContribution TransactionOrigin = "savings_contribution"
	OriginSavingsRefund       TransactionOrigin = "savings_refund"
	OriginRecurringInstance   TransactionOrigin = "recurring_instance"
	OriginAnnualChargePayment TransactionOrigin = "annual_charge_payment"
)

// IsTransferLeg reports whether the origin belongs to one side of a
// two-account transfer. Transfer legs are read-only once written.
func (o TransactionOrigin) IsTransferLeg() bool {
	switch o {
	case OriginTransfer, OriginSavingsContribution, OriginSavingsRefund:
		return true
	}
	return false
}

// Transaction is a single ledger row. A recurring transaction is a template:
// it never touches the balance, only its materialized instances do.
type Transaction struct {
	ID                  string            `json:"id"`
	AccountID           string            `json:"account_id"`
	Amount              decimal.Decimal   `json:"amount"` // negative = expense, positive = income
	Type                TransactionType   `json:"type"`
	Category            string            `json:"category"`
	Description         string            `json:"description,omitempty"`
	Date                time.Time         `json:"date"`
	IsRecurring         bool              `json:"is_recurring"`
	RecurrenceCadence   Cadence           `json:"recurrence_cadence,omitempty"`
	RecurrenceEndDate   *time.Time        `json:"recurrence_end_date,omitempty"`
	ParentTransactionID *string           `json:"parent_transaction_id,omitempty"`
	NextOccurrence      *time.Time        `json:"next_occurrence,omitempty"`
	PeriodIndex         int               `json:"period_index"`
	Origin              TransactionOrigin `json:"origin"`
	TransferID          *string           `json:"transfer_id,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// AffectsBalance reports whether the row carries a balance effect.
func (t *Transaction) AffectsBalance() bool {
	return !t.IsRecurring
}

// CreateTransactionRequest is the body for POST /v1/transactions.
type CreateTransactionRequest struct {
	AccountID         string            `json:"account_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Type              TransactionType   `json:"type"`
	Category          string            `json:"category"`
	Description       string            `json:"description,omitempty"`
	Date              *time.Time        `json:"date,omitempty"`
	IsRecurring       bool              `json:"is_recurring"`
	RecurrenceCadence Cadence           `json:"recurrence_cadence,omitempty"`
	RecurrenceEndDate *time.Time        `json:"recurrence_end_date,omitempty"`
	Origin            TransactionOrigin `json:"-"`
	ParentID          *string           `json:"-"`
	PeriodIndex       int               `json:"-"`
	TransferID        *string           `json:"-"`
}

// TransactionPatch carries the fields of PATCH /v1/transactions/{id}.
// Nil fields are left untouched.
type TransactionPatch struct {
	AccountID         *string          `json:"account_id,omitempty"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	Type              *TransactionType `json:"type,omitempty"`
	Category          *string          `json:"category,omitempty"`
	Description       *string          `json:"description,omitempty"`
	Date              *time.Time       `json:"date,omitempty"`
	IsRecurring       *bool            `json:"is_recurring,omitempty"`
	RecurrenceCadence *Cadence         `json:"recurrence_cadence,omitempty"`
	RecurrenceEndDate *time.Time       `json:"recurrence_end_date,omitempty"`
	ClearEndDate      bool             `json:"clear_recurrence_end_date,omitempty"`
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	AccountID     string
	UserID        string
	From          *time.Time
	To            *time.Time
	Origin        TransactionOrigin
	TemplatesOnly bool
	ParentID      string
}

// BatchResult is the aggregate outcome of a sweep. Errors never abort a
// batch; they are collected here.
type BatchResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}
