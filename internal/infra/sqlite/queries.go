package sqlite

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

// queries implements port.LedgerTx over either the root handle or an open
// transaction.
type queries struct {
	db *gorm.DB
}

// ============================================================
// Accounts
// ============================================================

func (q *queries) CreateAccount(ctx context.Context, acc *domain.Account) error {
	ctx, span := tracer.Start(ctx, "Store.CreateAccount")
	defer span.End()

	err := q.db.WithContext(ctx).Create(accountFromDomain(acc)).Error
	return mapErr("create account", "account", acc.ID, err)
}

func (q *queries) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Store.GetAccount")
	defer span.End()

	var row accountRow
	if err := q.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapErr("get account", "account", id, err)
	}
	acc := row.toDomain()
	return &acc, nil
}

func (q *queries) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Store.ListAccounts")
	defer span.End()

	db := q.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	var rows []accountRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, mapErr("list accounts", "account", userID, err)
	}
	out := make([]domain.Account, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (q *queries) SetAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	ctx, span := tracer.Start(ctx, "Store.SetAccountBalance")
	defer span.End()

	res := q.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", id).Update("balance", balance)
	if res.Error != nil {
		return mapErr("set balance", "account", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return nil
}

// ============================================================
// Transactions
// ============================================================

func (q *queries) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Store.InsertTransaction")
	defer span.End()

	err := q.db.WithContext(ctx).Create(transactionFromDomain(tx)).Error
	return mapErr("insert transaction", "transaction", tx.ID, err)
}

func (q *queries) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Store.GetTransaction")
	defer span.End()

	var row transactionRow
	if err := q.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapErr("get transaction", "transaction", id, err)
	}
	tx := row.toDomain()
	return &tx, nil
}

func (q *queries) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Store.UpdateTransaction")
	defer span.End()

	res := q.db.WithContext(ctx).Model(&transactionRow{}).Where("id = ?", tx.ID).
		Select("*").Omit("created_at").Updates(transactionFromDomain(tx))
	if res.Error != nil {
		return mapErr("update transaction", "transaction", tx.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: tx.ID}
	}
	return nil
}

func (q *queries) DeleteTransaction(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Store.DeleteTransaction")
	defer span.End()

	res := q.db.WithContext(ctx).Delete(&transactionRow{}, "id = ?", id)
	if res.Error != nil {
		return mapErr("delete transaction", "transaction", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return nil
}

func (q *queries) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Store.ListTransactions")
	defer span.End()

	db := q.db.WithContext(ctx).Model(&transactionRow{})
	if f.AccountID != "" {
		db = db.Where("account_id = ?", f.AccountID)
	}
	if f.UserID != "" {
		db = db.Where("account_id IN (?)", q.db.Model(&accountRow{}).Select("id").Where("user_id = ?", f.UserID))
	}
	if f.From != nil {
		db = db.Where("date >= ?", domain.DateOf(*f.From))
	}
	if f.To != nil {
		db = db.Where("date <= ?", domain.DateOf(*f.To))
	}
	if f.Origin != "" {
		db = db.Where("origin = ?", string(f.Origin))
	}
	if f.TemplatesOnly {
		db = db.Where("is_recurring = ?", true)
	}
	if f.ParentID != "" {
		db = db.Where("parent_transaction_id = ?", f.ParentID)
	}
	return q.findTransactions(db, "list transactions")
}

func (q *queries) ListDueTemplates(ctx context.Context, userID string, asOf time.Time) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Store.ListDueTemplates")
	defer span.End()

	db := q.db.WithContext(ctx).Model(&transactionRow{}).
		Where("is_recurring = ? AND next_occurrence IS NOT NULL AND next_occurrence <= ?", true, domain.DateOf(asOf))
	if userID != "" {
		db = db.Where("account_id IN (?)", q.db.Model(&accountRow{}).Select("id").Where("user_id = ?", userID))
	}
	return q.findTransactions(db, "list due templates")
}

func (q *queries) FindInstance(ctx context.Context, parentID string, periodIndex int) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Store.FindInstance")
	defer span.End()

	var row transactionRow
	err := q.db.WithContext(ctx).
		Where("parent_transaction_id = ? AND period_index = ?", parentID, periodIndex).
		First(&row).Error
	if err != nil {
		return nil, mapErr("find instance", "transaction instance", parentID, err)
	}
	tx := row.toDomain()
	return &tx, nil
}

func (q *queries) ListTransferLegs(ctx context.Context, transferID string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Store.ListTransferLegs")
	defer span.End()

	db := q.db.WithContext(ctx).Model(&transactionRow{}).Where("transfer_id = ?", transferID)
	return q.findTransactions(db, "list transfer legs")
}

func (q *queries) findTransactions(db *gorm.DB, op string) ([]domain.Transaction, error) {
	var rows []transactionRow
	if err := db.Order("date ASC, created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapErr(op, "transaction", "", err)
	}
	out := make([]domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// ============================================================
// Annual charges
// ============================================================

func (q *queries) InsertCharge(ctx context.Context, c *domain.AnnualCharge) error {
	ctx, span := tracer.Start(ctx, "Store.InsertCharge")
	defer span.End()

	err := q.db.WithContext(ctx).Create(chargeFromDomain(c)).Error
	return mapErr("insert charge", "annual charge", c.ID, err)
}

func (q *queries) GetCharge(ctx context.Context, id string) (*domain.AnnualCharge, error) {
	ctx, span := tracer.Start(ctx, "Store.GetCharge")
	defer span.End()

	var row chargeRow
	if err := q.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapErr("get charge", "annual charge", id, err)
	}
	c := row.toDomain()
	return &c, nil
}

func (q *queries) UpdateCharge(ctx context.Context, c *domain.AnnualCharge) error {
	ctx, span := tracer.Start(ctx, "Store.UpdateCharge")
	defer span.End()

	res := q.db.WithContext(ctx).Model(&chargeRow{}).Where("id = ?", c.ID).
		Select("*").Omit("created_at").Updates(chargeFromDomain(c))
	if res.Error != nil {
		return mapErr("update charge", "annual charge", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "annual charge", ID: c.ID}
	}
	return nil
}

func (q *queries) DeleteCharge(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Store.DeleteCharge")
	defer span.End()

	res := q.db.WithContext(ctx).Delete(&chargeRow{}, "id = ?", id)
	if res.Error != nil {
		return mapErr("delete charge", "annual charge", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "annual charge", ID: id}
	}
	return nil
}

func (q *queries) ListCharges(ctx context.Context, f domain.ChargeFilter) ([]domain.AnnualCharge, error) {
	ctx, span := tracer.Start(ctx, "Store.ListCharges")
	defer span.End()

	db := q.db.WithContext(ctx).Model(&chargeRow{})
	if f.IsPaid != nil {
		db = db.Where("is_paid = ?", *f.IsPaid)
	}
	if f.IslamicOnly {
		db = db.Where("is_islamic = ?", true)
	}
	if f.DueBefore != nil {
		db = db.Where("due_date <= ?", domain.DateOf(*f.DueBefore))
	}
	if f.Year != 0 {
		db = db.Where("due_date >= ? AND due_date < ?",
			domain.Date(f.Year, time.January, 1), domain.Date(f.Year+1, time.January, 1))
	}

	var rows []chargeRow
	if err := db.Order("due_date ASC, name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapErr("list charges", "annual charge", "", err)
	}
	out := make([]domain.AnnualCharge, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (q *queries) FindChargeInSeries(ctx context.Context, seriesID string, periodIndex int) (*domain.AnnualCharge, error) {
	ctx, span := tracer.Start(ctx, "Store.FindChargeInSeries")
	defer span.End()

	var row chargeRow
	err := q.db.WithContext(ctx).
		Where("series_id = ? AND period_index = ?", seriesID, periodIndex).
		First(&row).Error
	if err != nil {
		return nil, mapErr("find charge in series", "annual charge", seriesID, err)
	}
	c := row.toDomain()
	return &c, nil
}

func (q *queries) FindIslamicCharge(ctx context.Context, holidayID string, year int) (*domain.AnnualCharge, error) {
	ctx, span := tracer.Start(ctx, "Store.FindIslamicCharge")
	defer span.End()

	var row chargeRow
	err := q.db.WithContext(ctx).
		Where("islamic_holiday_id = ? AND islamic_year = ?", holidayID, year).
		First(&row).Error
	if err != nil {
		return nil, mapErr("find islamic charge", "islamic charge", holidayID, err)
	}
	c := row.toDomain()
	return &c, nil
}

func (q *queries) DeleteIslamicCharges(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.DeleteIslamicCharges")
	defer span.End()

	res := q.db.WithContext(ctx).Where("is_islamic = ?", true).Delete(&chargeRow{})
	if res.Error != nil {
		return 0, mapErr("delete islamic charges", "islamic charge", "", res.Error)
	}
	return int(res.RowsAffected), nil
}

// ============================================================
// Settings
// ============================================================

func (q *queries) GetIslamicSettings(ctx context.Context) (*domain.IslamicSettings, error) {
	ctx, span := tracer.Start(ctx, "Store.GetIslamicSettings")
	defer span.End()

	var rows []settingsRow
	if err := q.db.WithContext(ctx).Where("id = ?", settingsRowID).Limit(1).Find(&rows).Error; err != nil {
		return nil, mapErr("get settings", "islamic settings", "", err)
	}
	if len(rows) == 0 {
		s := domain.DefaultIslamicSettings()
		return &s, nil
	}
	s, err := rows[0].toDomain()
	if err != nil {
		return nil, &domain.ErrStorage{Op: "get settings", Err: err}
	}
	return &s, nil
}

func (q *queries) SaveIslamicSettings(ctx context.Context, s *domain.IslamicSettings) error {
	ctx, span := tracer.Start(ctx, "Store.SaveIslamicSettings")
	defer span.End()

	row, err := settingsFromDomain(s)
	if err != nil {
		return &domain.ErrStorage{Op: "save settings", Err: err}
	}
	err = q.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
	return mapErr("save settings", "islamic settings", "", err)
}
