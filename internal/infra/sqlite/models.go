package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

// Money columns are text so decimals round-trip without float conversion.

type accountRow struct {
	ID        string          `gorm:"primaryKey;size:36"`
	UserID    string          `gorm:"index;size:64;not null"`
	Name      string          `gorm:"size:128;not null"`
	Balance   decimal.Decimal `gorm:"type:text;not null"`
	Currency  string          `gorm:"size:8;not null"`
	CreatedAt time.Time
}

func (accountRow) TableName() string { return "accounts" }

type transactionRow struct {
	ID                  string          `gorm:"primaryKey;size:36"`
	AccountID           string          `gorm:"index;size:36;not null"`
	Amount              decimal.Decimal `gorm:"type:text;not null"`
	Type                string          `gorm:"size:16;not null"`
	Category            string          `gorm:"size:64;not null"`
	Description         string          `gorm:"type:text"`
	Date                time.Time       `gorm:"index;not null"`
	IsRecurring         bool            `gorm:"index;not null"`
	RecurrenceCadence   string          `gorm:"size:16"`
	RecurrenceEndDate   *time.Time
	ParentTransactionID *string `gorm:"size:36;uniqueIndex:idx_instance_period"`
	PeriodIndex         int     `gorm:"not null;default:0;uniqueIndex:idx_instance_period"`
	NextOccurrence      *time.Time
	Origin              string  `gorm:"size:32;index;not null"`
	TransferID          *string `gorm:"size:36;index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (transactionRow) TableName() string { return "transactions" }

type chargeRow struct {
	ID                   string          `gorm:"primaryKey;size:36"`
	Name                 string          `gorm:"size:128;not null"`
	Amount               decimal.Decimal `gorm:"type:text;not null"`
	DueDate              time.Time       `gorm:"index;not null"`
	Category             string          `gorm:"size:64"`
	IsPaid               bool            `gorm:"index;not null"`
	PaidDate             *time.Time
	AccountID            *string `gorm:"size:36"`
	AutoDeduct           bool
	Recurrence           *string `gorm:"size:16"`
	IsIslamic            bool    `gorm:"index"`
	IslamicHolidayID     *string `gorm:"size:64;uniqueIndex:idx_islamic_year"`
	IslamicYear          int     `gorm:"uniqueIndex:idx_islamic_year"`
	Type                 string  `gorm:"size:16;not null"`
	SeriesID             string  `gorm:"size:36;not null;uniqueIndex:idx_series_period"`
	PeriodIndex          int     `gorm:"not null;default:0;uniqueIndex:idx_series_period"`
	PaymentTransactionID *string `gorm:"size:36"`
	Notes                string  `gorm:"type:text"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (chargeRow) TableName() string { return "annual_charges" }

// settingsRow is a singleton; ID is always settingsRowID.
type settingsRow struct {
	ID                 uint `gorm:"primaryKey"`
	GenerationAllowed  bool
	IncludeRecommended bool
	AccountID          *string `gorm:"size:36"`
	AutoDeduct         bool
	AmountOverrides    string `gorm:"type:text"`
	UpdatedAt          time.Time
}

func (settingsRow) TableName() string { return "islamic_settings" }

const settingsRowID = 1

// ============================================================
// Conversions
// ============================================================

func accountFromDomain(a *domain.Account) *accountRow {
	return &accountRow{
		ID:        a.ID,
		UserID:    a.UserID,
		Name:      a.Name,
		Balance:   a.Balance,
		Currency:  a.Currency,
		CreatedAt: a.CreatedAt.UTC(),
	}
}

func (r *accountRow) toDomain() domain.Account {
	return domain.Account{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Balance:   r.Balance,
		Currency:  r.Currency,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func transactionFromDomain(t *domain.Transaction) *transactionRow {
	return &transactionRow{
		ID:                  t.ID,
		AccountID:           t.AccountID,
		Amount:              t.Amount,
		Type:                string(t.Type),
		Category:            t.Category,
		Description:         t.Description,
		Date:                domain.DateOf(t.Date),
		IsRecurring:         t.IsRecurring,
		RecurrenceCadence:   string(t.RecurrenceCadence),
		RecurrenceEndDate:   utcPtr(t.RecurrenceEndDate),
		ParentTransactionID: t.ParentTransactionID,
		PeriodIndex:         t.PeriodIndex,
		NextOccurrence:      utcPtr(t.NextOccurrence),
		Origin:              string(t.Origin),
		TransferID:          t.TransferID,
		CreatedAt:           t.CreatedAt.UTC(),
		UpdatedAt:           t.UpdatedAt.UTC(),
	}
}

func (r *transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:                  r.ID,
		AccountID:           r.AccountID,
		Amount:              r.Amount,
		Type:                domain.TransactionType(r.Type),
		Category:            r.Category,
		Description:         r.Description,
		Date:                domain.DateOf(r.Date),
		IsRecurring:         r.IsRecurring,
		RecurrenceCadence:   domain.Cadence(r.RecurrenceCadence),
		RecurrenceEndDate:   utcPtr(r.RecurrenceEndDate),
		ParentTransactionID: r.ParentTransactionID,
		PeriodIndex:         r.PeriodIndex,
		NextOccurrence:      utcPtr(r.NextOccurrence),
		Origin:              domain.TransactionOrigin(r.Origin),
		TransferID:          r.TransferID,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
}

func chargeFromDomain(c *domain.AnnualCharge) *chargeRow {
	row := &chargeRow{
		ID:                   c.ID,
		Name:                 c.Name,
		Amount:               c.Amount,
		DueDate:              domain.DateOf(c.DueDate),
		Category:             c.Category,
		IsPaid:               c.IsPaid,
		PaidDate:             utcPtr(c.PaidDate),
		AccountID:            c.AccountID,
		AutoDeduct:           c.AutoDeduct,
		IsIslamic:            c.IsIslamic,
		IslamicHolidayID:     c.IslamicHolidayID,
		IslamicYear:          c.IslamicYear,
		Type:                 string(c.Type),
		SeriesID:             c.SeriesID,
		PeriodIndex:          c.PeriodIndex,
		PaymentTransactionID: c.PaymentTransactionID,
		Notes:                c.Notes,
		CreatedAt:            c.CreatedAt.UTC(),
		UpdatedAt:            c.UpdatedAt.UTC(),
	}
	if c.IsRecurring() {
		s := string(*c.Recurrence)
		row.Recurrence = &s
	}
	return row
}

func (r *chargeRow) toDomain() domain.AnnualCharge {
	c := domain.AnnualCharge{
		ID:                   r.ID,
		Name:                 r.Name,
		Amount:               r.Amount,
		DueDate:              domain.DateOf(r.DueDate),
		Category:             r.Category,
		IsPaid:               r.IsPaid,
		PaidDate:             utcPtr(r.PaidDate),
		AccountID:            r.AccountID,
		AutoDeduct:           r.AutoDeduct,
		IsIslamic:            r.IsIslamic,
		IslamicHolidayID:     r.IslamicHolidayID,
		IslamicYear:          r.IslamicYear,
		Type:                 domain.ChargeType(r.Type),
		SeriesID:             r.SeriesID,
		PeriodIndex:          r.PeriodIndex,
		PaymentTransactionID: r.PaymentTransactionID,
		Notes:                r.Notes,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
	if r.Recurrence != nil && *r.Recurrence != "" {
		cad := domain.Cadence(*r.Recurrence)
		c.Recurrence = &cad
	}
	return c
}

func settingsFromDomain(s *domain.IslamicSettings) (*settingsRow, error) {
	overrides := "{}"
	if len(s.AmountOverrides) > 0 {
		b, err := json.Marshal(s.AmountOverrides)
		if err != nil {
			return nil, fmt.Errorf("encode amount overrides: %w", err)
		}
		overrides = string(b)
	}
	return &settingsRow{
		ID:                 settingsRowID,
		GenerationAllowed:  s.GenerationAllowed,
		IncludeRecommended: s.IncludeRecommended,
		AccountID:          s.AccountID,
		AutoDeduct:         s.AutoDeduct,
		AmountOverrides:    overrides,
	}, nil
}

func (r *settingsRow) toDomain() (domain.IslamicSettings, error) {
	s := domain.IslamicSettings{
		GenerationAllowed:  r.GenerationAllowed,
		IncludeRecommended: r.IncludeRecommended,
		AccountID:          r.AccountID,
		AutoDeduct:         r.AutoDeduct,
	}
	if r.AmountOverrides != "" && r.AmountOverrides != "{}" {
		if err := json.Unmarshal([]byte(r.AmountOverrides), &s.AmountOverrides); err != nil {
			return s, fmt.Errorf("decode amount overrides: %w", err)
		}
	}
	return s, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
