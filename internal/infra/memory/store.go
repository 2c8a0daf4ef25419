// Package memory is an in-process implementation of port.LedgerStore.
//
// It backs STORE_DRIVER=memory and doubles as the test double for the
// service layer. Atomic units are serialized and roll back by restoring a
// snapshot of every table taken before the unit started.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/port"
)

type tables struct {
	accounts map[string]domain.Account
	txs      map[string]domain.Transaction
	charges  map[string]domain.AnnualCharge
	settings *domain.IslamicSettings
}

func newTables() *tables {
	return &tables{
		accounts: make(map[string]domain.Account),
		txs:      make(map[string]domain.Transaction),
		charges:  make(map[string]domain.AnnualCharge),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.accounts {
		c.accounts[k] = v
	}
	for k, v := range t.txs {
		c.txs[k] = v
	}
	for k, v := range t.charges {
		c.charges[k] = v
	}
	if t.settings != nil {
		s := cloneSettings(*t.settings)
		c.settings = &s
	}
	return c
}

func cloneSettings(s domain.IslamicSettings) domain.IslamicSettings {
	if s.AmountOverrides != nil {
		m := make(map[string]decimal.Decimal, len(s.AmountOverrides))
		for k, v := range s.AmountOverrides {
			m[k] = v
		}
		s.AmountOverrides = m
	}
	return s
}

// view implements port.LedgerTx directly over the tables. Writes made through
// a view are not serialized against atomic units; Store wraps them.
type view struct {
	mu sync.RWMutex
	t  *tables
}

// Store is the in-memory LedgerStore.
type Store struct {
	*view
	unit sync.Mutex
}

// New creates an empty store.
func New() *Store {
	return &Store{view: &view{t: newTables()}}
}

// WithAtomicUnit runs fn against the store. If fn fails or panics every write
// it made is discarded.
func (s *Store) WithAtomicUnit(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) (err error) {
	s.unit.Lock()
	defer s.unit.Unlock()

	s.view.mu.RLock()
	snapshot := s.view.t.clone()
	s.view.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()
	return fn(ctx, s.view)
}

func (s *Store) restore(snapshot *tables) {
	s.view.mu.Lock()
	s.view.t = snapshot
	s.view.mu.Unlock()
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

// Writes outside an atomic unit still wait for running units.

func (s *Store) CreateAccount(ctx context.Context, acc *domain.Account) error {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.CreateAccount(ctx, acc)
}

func (s *Store) SetAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.SetAccountBalance(ctx, id, balance)
}

func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.InsertTransaction(ctx, tx)
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.UpdateTransaction(ctx, tx)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.DeleteTransaction(ctx, id)
}

func (s *Store) InsertCharge(ctx context.Context, c *domain.AnnualCharge) error {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.InsertCharge(ctx, c)
}

func (s *Store) UpdateCharge(ctx context.Context, c *domain.AnnualCharge) error {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.UpdateCharge(ctx, c)
}

func (s *Store) DeleteCharge(ctx context.Context, id string) error {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.DeleteCharge(ctx, id)
}

func (s *Store) DeleteIslamicCharges(ctx context.Context) (int, error) {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.DeleteIslamicCharges(ctx)
}

func (s *Store) SaveIslamicSettings(ctx context.Context, settings *domain.IslamicSettings) error {
	s.unit.Lock()
	defer s.unit.Unlock()
	return s.view.SaveIslamicSettings(ctx, settings)
}

// ============================================================
// Accounts
// ============================================================

func (v *view) CreateAccount(_ context.Context, acc *domain.Account) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.t.accounts[acc.ID]; ok {
		return &domain.ErrConflict{Message: "account already exists: " + acc.ID}
	}
	v.t.accounts[acc.ID] = *acc
	return nil
}

func (v *view) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	acc, ok := v.t.accounts[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return &acc, nil
}

func (v *view) ListAccounts(_ context.Context, userID string) ([]domain.Account, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Account, 0, len(v.t.accounts))
	for _, acc := range v.t.accounts {
		if userID == "" || acc.UserID == userID {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) SetAccountBalance(_ context.Context, id string, balance decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	acc, ok := v.t.accounts[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "account", ID: id}
	}
	acc.Balance = balance
	v.t.accounts[id] = acc
	return nil
}

// ============================================================
// Transactions
// ============================================================

func (v *view) InsertTransaction(_ context.Context, tx *domain.Transaction) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.t.txs[tx.ID]; ok {
		return &domain.ErrConflict{Message: "transaction already exists: " + tx.ID}
	}
	if tx.ParentTransactionID != nil {
		if _, ok := v.findInstance(*tx.ParentTransactionID, tx.PeriodIndex); ok {
			return &domain.ErrConflict{Message: "instance already materialized for this period"}
		}
	}
	v.t.txs[tx.ID] = *tx
	return nil
}

func (v *view) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	tx, ok := v.t.txs[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return &tx, nil
}

func (v *view) UpdateTransaction(_ context.Context, tx *domain.Transaction) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.t.txs[tx.ID]; !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: tx.ID}
	}
	v.t.txs[tx.ID] = *tx
	return nil
}

func (v *view) DeleteTransaction(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.t.txs[id]; !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	delete(v.t.txs, id)
	return nil
}

func (v *view) ListTransactions(_ context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []domain.Transaction
	for _, tx := range v.t.txs {
		if v.matches(tx, f) {
			out = append(out, tx)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (v *view) matches(tx domain.Transaction, f domain.TransactionFilter) bool {
	if f.AccountID != "" && tx.AccountID != f.AccountID {
		return false
	}
	if f.UserID != "" {
		acc, ok := v.t.accounts[tx.AccountID]
		if !ok || acc.UserID != f.UserID {
			return false
		}
	}
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Date.After(*f.To) {
		return false
	}
	if f.Origin != "" && tx.Origin != f.Origin {
		return false
	}
	if f.TemplatesOnly && !tx.IsRecurring {
		return false
	}
	if f.ParentID != "" && (tx.ParentTransactionID == nil || *tx.ParentTransactionID != f.ParentID) {
		return false
	}
	return true
}

func (v *view) ListDueTemplates(_ context.Context, userID string, asOf time.Time) ([]domain.Transaction, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []domain.Transaction
	for _, tx := range v.t.txs {
		if !tx.IsRecurring || tx.NextOccurrence == nil || tx.NextOccurrence.After(asOf) {
			continue
		}
		if !v.matches(tx, domain.TransactionFilter{UserID: userID}) {
			continue
		}
		out = append(out, tx)
	}
	sortTransactions(out)
	return out, nil
}

func (v *view) FindInstance(_ context.Context, parentID string, periodIndex int) (*domain.Transaction, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	tx, ok := v.findInstance(parentID, periodIndex)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction instance", ID: parentID}
	}
	return &tx, nil
}

func (v *view) findInstance(parentID string, periodIndex int) (domain.Transaction, bool) {
	for _, tx := range v.t.txs {
		if tx.ParentTransactionID != nil && *tx.ParentTransactionID == parentID && tx.PeriodIndex == periodIndex {
			return tx, true
		}
	}
	return domain.Transaction{}, false
}

func (v *view) ListTransferLegs(_ context.Context, transferID string) ([]domain.Transaction, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []domain.Transaction
	for _, tx := range v.t.txs {
		if tx.TransferID != nil && *tx.TransferID == transferID {
			out = append(out, tx)
		}
	}
	sortTransactions(out)
	return out, nil
}

func sortTransactions(txs []domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// ============================================================
// Annual charges
// ============================================================

func (v *view) InsertCharge(_ context.Context, c *domain.AnnualCharge) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.t.charges[c.ID]; ok {
		return &domain.ErrConflict{Message: "charge already exists: " + c.ID}
	}
	if _, ok := v.findInSeries(c.SeriesID, c.PeriodIndex); ok {
		return &domain.ErrConflict{Message: "charge already exists for this period of the series"}
	}
	if c.IslamicHolidayID != nil {
		if _, ok := v.findIslamic(*c.IslamicHolidayID, c.IslamicYear); ok {
			return &domain.ErrConflict{Message: "islamic charge already generated for this year"}
		}
	}
	v.t.charges[c.ID] = *c
	return nil
}

func (v *view) GetCharge(_ context.Context, id string) (*domain.AnnualCharge, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.t.charges[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "annual charge", ID: id}
	}
	return &c, nil
}

func (v *view) UpdateCharge(_ context.Context, c *domain.AnnualCharge) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.t.charges[c.ID]; !ok {
		return &domain.ErrNotFound{Resource: "annual charge", ID: c.ID}
	}
	v.t.charges[c.ID] = *c
	return nil
}

func (v *view) DeleteCharge(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.t.charges[id]; !ok {
		return &domain.ErrNotFound{Resource: "annual charge", ID: id}
	}
	delete(v.t.charges, id)
	return nil
}

func (v *view) ListCharges(_ context.Context, f domain.ChargeFilter) ([]domain.AnnualCharge, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []domain.AnnualCharge
	for _, c := range v.t.charges {
		if f.IsPaid != nil && c.IsPaid != *f.IsPaid {
			continue
		}
		if f.IslamicOnly && !c.IsIslamic {
			continue
		}
		if f.DueBefore != nil && c.DueDate.After(*f.DueBefore) {
			continue
		}
		if f.Year != 0 && c.DueDate.Year() != f.Year {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) FindChargeInSeries(_ context.Context, seriesID string, periodIndex int) (*domain.AnnualCharge, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.findInSeries(seriesID, periodIndex)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "annual charge", ID: seriesID}
	}
	return &c, nil
}

func (v *view) findInSeries(seriesID string, periodIndex int) (domain.AnnualCharge, bool) {
	for _, c := range v.t.charges {
		if c.SeriesID == seriesID && c.PeriodIndex == periodIndex {
			return c, true
		}
	}
	return domain.AnnualCharge{}, false
}

func (v *view) FindIslamicCharge(_ context.Context, holidayID string, year int) (*domain.AnnualCharge, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.findIslamic(holidayID, year)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "islamic charge", ID: holidayID}
	}
	return &c, nil
}

func (v *view) findIslamic(holidayID string, year int) (domain.AnnualCharge, bool) {
	for _, c := range v.t.charges {
		if c.IslamicHolidayID != nil && *c.IslamicHolidayID == holidayID && c.IslamicYear == year {
			return c, true
		}
	}
	return domain.AnnualCharge{}, false
}

func (v *view) DeleteIslamicCharges(_ context.Context) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for id, c := range v.t.charges {
		if c.IsIslamic {
			delete(v.t.charges, id)
			n++
		}
	}
	return n, nil
}

// ============================================================
// Settings
// ============================================================

func (v *view) GetIslamicSettings(_ context.Context) (*domain.IslamicSettings, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.t.settings == nil {
		s := domain.DefaultIslamicSettings()
		return &s, nil
	}
	s := cloneSettings(*v.t.settings)
	return &s, nil
}

func (v *view) SaveIslamicSettings(_ context.Context, s *domain.IslamicSettings) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	c := cloneSettings(*s)
	v.t.settings = &c
	return nil
}

var _ port.LedgerStore = (*Store)(nil)
