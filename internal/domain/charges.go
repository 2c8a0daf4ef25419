package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Annual charges
// ============================================================

// ChargeType classifies an annual charge.
type ChargeType string

const (
	ChargeNormal      ChargeType = "normal"
	ChargeObligatory  ChargeType = "obligatory"
	ChargeRecommended ChargeType = "recommended"
)

// Valid reports whether t is a known charge type.
func (t ChargeType) Valid() bool {
	switch t {
	case ChargeNormal, ChargeObligatory, ChargeRecommended:
		return true
	}
	return false
}

// AnnualCharge is a scheduled obligation with its own paid/pending state.
//
// SeriesID and PeriodIndex form the stable identity of an occurrence inside a
// recurring series: the first charge of a series has SeriesID == ID and
// PeriodIndex 0, every spawned sibling increments PeriodIndex. Renaming a
// charge never breaks de-duplication.
type AnnualCharge struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Amount               decimal.Decimal `json:"amount"`
	DueDate              time.Time       `json:"due_date"`
	Category             string          `json:"category"`
	IsPaid               bool            `json:"is_paid"`
	PaidDate             *time.Time      `json:"paid_date,omitempty"`
	AccountID            *string         `json:"account_id,omitempty"`
	AutoDeduct           bool            `json:"auto_deduct"`
	Recurrence           *Cadence        `json:"recurrence,omitempty"`
	IsIslamic            bool            `json:"is_islamic"`
	IslamicHolidayID     *string         `json:"islamic_holiday_id,omitempty"`
	IslamicYear          int             `json:"islamic_year,omitempty"`
	Type                 ChargeType      `json:"type"`
	SeriesID             string          `json:"series_id"`
	PeriodIndex          int             `json:"period_index"`
	PaymentTransactionID *string         `json:"payment_transaction_id,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// IsRecurring reports whether paying the charge spawns a sibling.
func (c *AnnualCharge) IsRecurring() bool {
	return c.Recurrence != nil && *c.Recurrence != ""
}

// CreateAnnualChargeRequest is the body for POST /v1/charges.
type CreateAnnualChargeRequest struct {
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    time.Time       `json:"due_date"`
	Category   string          `json:"category"`
	AccountID  *string         `json:"account_id,omitempty"`
	AutoDeduct bool            `json:"auto_deduct"`
	Recurrence *Cadence        `json:"recurrence,omitempty"`
	Type       ChargeType      `json:"type"`
	Notes      string          `json:"notes,omitempty"`
}

// AnnualChargePatch carries the fields of PATCH /v1/charges/{id}.
type AnnualChargePatch struct {
	Name         *string          `json:"name,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
	Category     *string          `json:"category,omitempty"`
	AccountID    *string          `json:"account_id,omitempty"`
	ClearAccount bool             `json:"clear_account,omitempty"`
	AutoDeduct   *bool            `json:"auto_deduct,omitempty"`
	Type         *ChargeType      `json:"type,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
}

// ChargeFilter narrows ListAnnualCharges.
type ChargeFilter struct {
	IsPaid      *bool
	IslamicOnly bool
	DueBefore   *time.Time
	Year        int
}

// CannotPayReason is a machine-readable reason returned by CanPay.
type CannotPayReason string

const (
	ReasonNotFound      CannotPayReason = "not_found"
	ReasonHidden        CannotPayReason = "hidden"
	ReasonAlreadyPaid   CannotPayReason = "already_paid"
	ReasonInvalidAmount CannotPayReason = "invalid_amount"
)

// CanPayResult is returned by CanPay; it is never an error so callers can
// render guidance.
type CanPayResult struct {
	CanPay  bool            `json:"can_pay"`
	Reason  CannotPayReason `json:"reason,omitempty"`
	Message string          `json:"message,omitempty"`
}

// PayChargeResult is returned by Pay.
type PayChargeResult struct {
	Charge        *AnnualCharge `json:"charge"`
	Transaction   *Transaction  `json:"transaction,omitempty"`
	NextCharge    *AnnualCharge `json:"next_charge,omitempty"`
	SiblingExists bool          `json:"sibling_exists,omitempty"`
}

// GenerationResult is returned by the next-year sibling generator.
type GenerationResult struct {
	Generated int      `json:"generated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}
