// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

// AccountStore persists accounts. SetAccountBalance is reserved for the
// ledger service; nothing else writes a balance.
type AccountStore interface {
	CreateAccount(ctx context.Context, acc *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	SetAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error
}

// TransactionStore persists transaction rows. It never touches balances.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	// ListDueTemplates returns the recurring templates of userID whose next
	// occurrence is on or before asOf.
	ListDueTemplates(ctx context.Context, userID string, asOf time.Time) ([]domain.Transaction, error)

	// FindInstance returns the instance materialized from parentID for the
	// given period, or ErrNotFound.
	FindInstance(ctx context.Context, parentID string, periodIndex int) (*domain.Transaction, error)

	// ListTransferLegs returns both legs sharing transferID.
	ListTransferLegs(ctx context.Context, transferID string) ([]domain.Transaction, error)
}

// AnnualChargeStore persists annual charges.
type AnnualChargeStore interface {
	InsertCharge(ctx context.Context, c *domain.AnnualCharge) error
	GetCharge(ctx context.Context, id string) (*domain.AnnualCharge, error)
	UpdateCharge(ctx context.Context, c *domain.AnnualCharge) error
	DeleteCharge(ctx context.Context, id string) error
	ListCharges(ctx context.Context, filter domain.ChargeFilter) ([]domain.AnnualCharge, error)

	// FindChargeInSeries returns the occurrence periodIndex of seriesID, or
	// ErrNotFound.
	FindChargeInSeries(ctx context.Context, seriesID string, periodIndex int) (*domain.AnnualCharge, error)

	// FindIslamicCharge returns the charge generated for holidayID in the
	// given Gregorian year, or ErrNotFound.
	FindIslamicCharge(ctx context.Context, holidayID string, year int) (*domain.AnnualCharge, error)

	// DeleteIslamicCharges removes every islamic charge and reports how many.
	DeleteIslamicCharges(ctx context.Context) (int, error)
}

// SettingsStore persists the single islamic settings row.
type SettingsStore interface {
	GetIslamicSettings(ctx context.Context) (*domain.IslamicSettings, error)
	SaveIslamicSettings(ctx context.Context, s *domain.IslamicSettings) error
}

// LedgerTx is the view of the store handed to an atomic unit.
type LedgerTx interface {
	AccountStore
	TransactionStore
	AnnualChargeStore
	SettingsStore
}

// LedgerStore is the full persistence port. Every multi-step balance mutation
// must go through WithAtomicUnit: either every write in fn is committed or
// none is.
type LedgerStore interface {
	LedgerTx
	WithAtomicUnit(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// HijriTableFetcher retrieves authoritative Hijri → Gregorian mappings.
type HijriTableFetcher interface {
	FetchYear(ctx context.Context, year int) ([]domain.HijriTableEntry, error)
}
