package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Islamic obligations
// ============================================================

// HolidayType classifies an islamic holiday.
type HolidayType string

const (
	HolidayObligatory  HolidayType = "obligatory"
	HolidayRecommended HolidayType = "recommended"
	HolidayCustom      HolidayType = "custom"
)

// ChargeType maps the holiday classification onto the charge classification.
func (t HolidayType) ChargeType() ChargeType {
	switch t {
	case HolidayObligatory:
		return ChargeObligatory
	case HolidayRecommended:
		return ChargeRecommended
	}
	return ChargeNormal
}

// IslamicHoliday is an immutable definition of a religious due date in the
// Hijri calendar.
type IslamicHoliday struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	NativeName    string          `json:"native_name"`
	HijriMonth    int             `json:"hijri_month"`
	HijriDay      int             `json:"hijri_day"`
	Type          HolidayType     `json:"type"`
	DefaultAmount decimal.Decimal `json:"default_amount"`
	IsRecurring   bool            `json:"is_recurring"`
}

// IslamicCharge is a holiday instantiated for a Gregorian year, joined with
// the annual charge generated for it, if any.
type IslamicCharge struct {
	Holiday        IslamicHoliday  `json:"holiday"`
	Year           int             `json:"year"`
	CalculatedDate time.Time       `json:"calculated_date"`
	ChargeID       *string         `json:"charge_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	IsPaid         bool            `json:"is_paid"`
}

// IslamicSettings is the explicit configuration of islamic obligation
// generation. It is persisted and passed into every call that depends on it.
type IslamicSettings struct {
	GenerationAllowed  bool                       `json:"generation_allowed"`
	IncludeRecommended bool                       `json:"include_recommended"`
	AccountID          *string                    `json:"account_id,omitempty"`
	AutoDeduct         bool                       `json:"auto_deduct"`
	AmountOverrides    map[string]decimal.Decimal `json:"amount_overrides,omitempty"`
}

// DefaultIslamicSettings is what a fresh ledger starts with.
func DefaultIslamicSettings() IslamicSettings {
	return IslamicSettings{GenerationAllowed: true, IncludeRecommended: true}
}

// AmountFor returns the configured amount for a holiday.
func (s IslamicSettings) AmountFor(h IslamicHoliday) decimal.Decimal {
	if v, ok := s.AmountOverrides[h.ID]; ok {
		return v
	}
	return h.DefaultAmount
}

// IslamicGenerationResult is returned by GenerateChargesForYear.
type IslamicGenerationResult struct {
	Year     int      `json:"year"`
	Created  int      `json:"created"`
	Skipped  int      `json:"skipped"`
	Disabled bool     `json:"disabled,omitempty"`
	Errors   []string `json:"errors"`
}

// HijriTableEntry is one authoritative Hijri → Gregorian mapping.
type HijriTableEntry struct {
	Year       int    `json:"year"`
	HijriMonth int    `json:"hijri_month"`
	HijriDay   int    `json:"hijri_day"`
	Date       string `json:"date"`
}

// HolidayMatch is the answer of IsHoliday.
type HolidayMatch struct {
	IsHoliday bool            `json:"is_holiday"`
	Holiday   *IslamicHoliday `json:"holiday,omitempty"`
}

// MonthName carries a Hijri month's name in Latin and native script.
type MonthName struct {
	Number int    `json:"number"`
	Latin  string `json:"latin"`
	Native string `json:"native"`
}
