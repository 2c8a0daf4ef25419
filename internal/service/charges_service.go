package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pf-ledger-go/internal/port"
	"github.com/boddenberg/pf-ledger-go/internal/recurrence"
)

var chargesTracer = otel.Tracer("service/charges")

// DefaultChargeCategory is used when an annual charge is created without one.
const DefaultChargeCategory = "annual_charge"

// ObligationService manages the lifecycle of annual charges: CRUD, the
// pay/toggle state machine and sibling generation for recurring series.
type ObligationService struct {
	store   port.LedgerStore
	ledger  *LedgerService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewObligationService creates a new obligation service.
func NewObligationService(store port.LedgerStore, ledger *LedgerService, metrics *observability.Metrics, logger *zap.Logger) *ObligationService {
	return &ObligationService{store: store, ledger: ledger, metrics: metrics, logger: logger}
}

// ============================================================
// CRUD
// ============================================================

// CreateAnnualCharge validates and stores a pending charge. The charge starts
// its own series at period 0.
func (s *ObligationService) CreateAnnualCharge(ctx context.Context, req *domain.CreateAnnualChargeRequest) (*domain.AnnualCharge, error) {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.CreateAnnualCharge")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "is required"}
	}
	if !req.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	if req.DueDate.IsZero() {
		return nil, &domain.ErrValidation{Field: "due_date", Message: "is required"}
	}
	typ := req.Type
	if typ == "" {
		typ = domain.ChargeNormal
	}
	if !typ.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "must be normal, obligatory or recommended"}
	}
	if err := validateChargeRecurrence(req.Recurrence); err != nil {
		return nil, err
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = DefaultChargeCategory
	}

	now := s.ledger.now().UTC()
	id := uuid.NewString()
	c := &domain.AnnualCharge{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Amount:      req.Amount,
		DueDate:     domain.DateOf(req.DueDate),
		Category:    category,
		AccountID:   nonEmpty(req.AccountID),
		AutoDeduct:  req.AutoDeduct,
		Recurrence:  cadencePtr(req.Recurrence),
		Type:        typ,
		SeriesID:    id,
		PeriodIndex: 0,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		if c.AccountID != nil {
			if _, err := tx.GetAccount(ctx, *c.AccountID); err != nil {
				return err
			}
		}
		return tx.InsertCharge(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("annual charge created",
		zap.String("charge_id", c.ID),
		zap.String("amount", c.Amount.String()),
		zap.String("due_date", c.DueDate.Format(domain.DateLayout)),
	)
	return c, nil
}

func (s *ObligationService) GetAnnualCharge(ctx context.Context, id string) (*domain.AnnualCharge, error) {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.GetAnnualCharge")
	defer span.End()

	return s.store.GetCharge(ctx, id)
}

// ListAnnualCharges lists charges; islamic charges are hidden while
// generation is disabled.
func (s *ObligationService) ListAnnualCharges(ctx context.Context, filter domain.ChargeFilter, settings domain.IslamicSettings) ([]domain.AnnualCharge, error) {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.ListAnnualCharges")
	defer span.End()

	charges, err := s.store.ListCharges(ctx, filter)
	if err != nil {
		return nil, err
	}
	if settings.GenerationAllowed {
		return charges, nil
	}
	visible := make([]domain.AnnualCharge, 0, len(charges))
	for _, c := range charges {
		if !c.IsIslamic {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// UpdateAnnualCharge applies a patch with the same validation as creation.
// Payment state is only changed through PayCharge and TogglePaidStatus.
func (s *ObligationService) UpdateAnnualCharge(ctx context.Context, id string, patch *domain.AnnualChargePatch) (*domain.AnnualCharge, error) {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.UpdateAnnualCharge")
	defer span.End()
	span.SetAttributes(attribute.String("charge.id", id))

	var updated *domain.AnnualCharge
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		c, err := tx.GetCharge(ctx, id)
		if err != nil {
			return err
		}
		if err := applyChargePatch(c, patch); err != nil {
			return err
		}
		if patch.AccountID != nil && c.AccountID != nil {
			if _, err := tx.GetAccount(ctx, *c.AccountID); err != nil {
				return err
			}
		}
		c.UpdatedAt = s.ledger.now().UTC()
		if err := tx.UpdateCharge(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("annual charge updated", zap.String("charge_id", id))
	return updated, nil
}

// DeleteAnnualCharge removes a charge. A payment already booked stays in the
// ledger.
func (s *ObligationService) DeleteAnnualCharge(ctx context.Context, id string) error {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.DeleteAnnualCharge")
	defer span.End()

	if err := s.store.DeleteCharge(ctx, id); err != nil {
		return err
	}
	s.logger.Info("annual charge deleted", zap.String("charge_id", id))
	return nil
}

// ============================================================
// Payment
// ============================================================

// CanPayCharge evaluates the payment rules in order. Business outcomes are
// reported in the result, never as an error.
func (s *ObligationService) CanPayCharge(ctx context.Context, id string, settings domain.IslamicSettings) (*domain.CanPayResult, error) {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.CanPayCharge")
	defer span.End()

	c, err := s.store.GetCharge(ctx, id)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	res := canPay(c, settings)
	return &res, nil
}

func canPay(c *domain.AnnualCharge, settings domain.IslamicSettings) domain.CanPayResult {
	switch {
	case c == nil:
		return domain.CanPayResult{Reason: domain.ReasonNotFound, Message: "charge not found"}
	case c.IsIslamic && !settings.GenerationAllowed:
		return domain.CanPayResult{Reason: domain.ReasonHidden, Message: "islamic charges are disabled"}
	case c.IsPaid:
		return domain.CanPayResult{Reason: domain.ReasonAlreadyPaid, Message: "charge is already paid"}
	case !c.Amount.IsPositive():
		return domain.CanPayResult{Reason: domain.ReasonInvalidAmount, Message: "charge amount must be greater than zero"}
	}
	return domain.CanPayResult{CanPay: true}
}

// PayCharge debits the account (accountID if given, else the charge's own),
// marks the charge paid and spawns the next sibling of a recurring series,
// all in one atomic unit. Without any account the charge is recorded as paid
// in cash, with no balance effect.
func (s *ObligationService) PayCharge(ctx context.Context, id string, accountID *string, settings domain.IslamicSettings) (*domain.PayChargeResult, error) {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.PayCharge")
	defer span.End()
	span.SetAttributes(attribute.String("charge.id", id))

	result := &domain.PayChargeResult{}
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		c, err := tx.GetCharge(ctx, id)
		if err != nil {
			return err
		}
		if check := canPay(c, settings); !check.CanPay {
			return &domain.ErrValidation{Field: string(check.Reason), Message: check.Message}
		}

		payFrom := c.AccountID
		if acc := nonEmpty(accountID); acc != nil {
			payFrom = acc
		}
		if payFrom != nil {
			t, err := s.ledger.createInTx(ctx, tx, &domain.CreateTransactionRequest{
				AccountID:   *payFrom,
				Amount:      c.Amount,
				Type:        domain.TransactionExpense,
				Category:    c.Category,
				Description: c.Name,
				Origin:      domain.OriginAnnualChargePayment,
			})
			if err != nil {
				return err
			}
			result.Transaction = t
			c.PaymentTransactionID = &t.ID
		}

		today := s.ledger.Today()
		c.IsPaid = true
		c.PaidDate = &today
		c.UpdatedAt = s.ledger.now().UTC()
		if err := tx.UpdateCharge(ctx, c); err != nil {
			return err
		}
		result.Charge = c

		result.NextCharge, result.SiblingExists, err = s.spawnSibling(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrChargePaid()
	fields := []zap.Field{
		zap.String("charge_id", id),
		zap.String("amount", result.Charge.Amount.String()),
		zap.Bool("cash", result.Transaction == nil),
	}
	if result.NextCharge != nil {
		fields = append(fields, zap.String("next_charge_id", result.NextCharge.ID))
	}
	s.logger.Info("annual charge paid", fields...)
	return result, nil
}

// TogglePaidStatus is the manual override of the paid flag. It never debits
// and un-marking never reverts an earlier payment. Marking paid still spawns
// the next sibling of a recurring series.
func (s *ObligationService) TogglePaidStatus(ctx context.Context, id string, isPaid bool) (*domain.AnnualCharge, error) {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.TogglePaidStatus")
	defer span.End()
	span.SetAttributes(attribute.String("charge.id", id), attribute.Bool("charge.is_paid", isPaid))

	var updated *domain.AnnualCharge
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		c, err := tx.GetCharge(ctx, id)
		if err != nil {
			return err
		}
		updated = c
		if c.IsPaid == isPaid {
			return nil
		}

		c.IsPaid = isPaid
		if isPaid {
			today := s.ledger.Today()
			c.PaidDate = &today
		} else {
			c.PaidDate = nil
		}
		c.UpdatedAt = s.ledger.now().UTC()
		if err := tx.UpdateCharge(ctx, c); err != nil {
			return err
		}
		if isPaid {
			_, _, err = s.spawnSibling(ctx, tx, c)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("annual charge toggled", zap.String("charge_id", id), zap.Bool("is_paid", isPaid))
	return updated, nil
}

// ProcessDueCharges pays every pending auto-deduct charge with an account
// whose due date has arrived. Hidden islamic charges are skipped.
func (s *ObligationService) ProcessDueCharges(ctx context.Context, settings domain.IslamicSettings) *domain.BatchResult {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.ProcessDueCharges")
	defer span.End()

	result := &domain.BatchResult{Errors: []string{}}
	today := s.ledger.Today()
	pending := false

	charges, err := s.store.ListCharges(ctx, domain.ChargeFilter{IsPaid: &pending, DueBefore: &today})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list due charges: %v", err))
		s.metrics.RecordSweep("auto_deduct", 0, 1)
		return result
	}

	for _, c := range charges {
		if !c.AutoDeduct || c.AccountID == nil {
			continue
		}
		if c.IsIslamic && !settings.GenerationAllowed {
			result.Skipped++
			continue
		}
		if _, err := s.PayCharge(ctx, c.ID, nil, settings); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("charge %s: %v", c.ID, err))
			s.logger.Error("auto-deduct failed", zap.String("charge_id", c.ID), zap.Error(err))
			continue
		}
		result.Processed++
	}

	span.SetAttributes(attribute.Int("sweep.processed", result.Processed))
	s.metrics.RecordSweep("auto_deduct", result.Processed, len(result.Errors))
	return result
}

// ============================================================
// Recurring series
// ============================================================

// spawnSibling ensures the next occurrence of a recurring series exists. It
// returns the sibling and whether it was already there.
func (s *ObligationService) spawnSibling(ctx context.Context, tx port.LedgerTx, c *domain.AnnualCharge) (*domain.AnnualCharge, bool, error) {
	if !c.IsRecurring() {
		return nil, false, nil
	}

	existing, err := tx.FindChargeInSeries(ctx, c.SeriesID, c.PeriodIndex+1)
	if err == nil {
		return existing, true, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}

	due, err := recurrence.NextDate(c.DueDate, *c.Recurrence)
	if err != nil {
		return nil, false, err
	}

	now := s.ledger.now().UTC()
	sibling := *c
	sibling.ID = uuid.NewString()
	sibling.DueDate = due
	sibling.PeriodIndex = c.PeriodIndex + 1
	sibling.IsPaid = false
	sibling.PaidDate = nil
	sibling.PaymentTransactionID = nil
	sibling.Recurrence = cadencePtr(c.Recurrence)
	sibling.AccountID = nonEmpty(c.AccountID)
	sibling.CreatedAt = now
	sibling.UpdatedAt = now

	if err := tx.InsertCharge(ctx, &sibling); err != nil {
		return nil, false, err
	}
	s.logger.Info("recurring charge sibling spawned",
		zap.String("charge_id", sibling.ID),
		zap.String("series_id", sibling.SeriesID),
		zap.Int("period_index", sibling.PeriodIndex),
		zap.String("due_date", due.Format(domain.DateLayout)),
	)
	return &sibling, false, nil
}

// GenerateRecurringChargesForNextYear ensures that every recurring charge due
// in the current year has its next occurrence, regardless of payment state.
func (s *ObligationService) GenerateRecurringChargesForNextYear(ctx context.Context) *domain.GenerationResult {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.GenerateRecurringChargesForNextYear")
	defer span.End()

	result := &domain.GenerationResult{Errors: []string{}}
	year := s.ledger.Today().Year()

	charges, err := s.store.ListCharges(ctx, domain.ChargeFilter{Year: year})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list charges: %v", err))
		return result
	}

	for i := range charges {
		c := &charges[i]
		if !c.IsRecurring() {
			continue
		}
		var existed bool
		err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
			var err error
			_, existed, err = s.spawnSibling(ctx, tx, c)
			return err
		})
		var conflict *domain.ErrConflict
		switch {
		case errors.As(err, &conflict), err == nil && existed:
			result.Skipped++
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("charge %s: %v", c.ID, err))
		default:
			result.Generated++
		}
	}

	s.metrics.AddChargesGenerated("sibling", result.Generated)
	s.logger.Info("next-year charges generated",
		zap.Int("year", year+1),
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

// EnableRecurrence turns a charge into a recurring series. Islamic charges
// follow the Hijri calendar and are regenerated per year instead.
func (s *ObligationService) EnableRecurrence(ctx context.Context, id string, cadence domain.Cadence) (*domain.AnnualCharge, error) {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.EnableRecurrence")
	defer span.End()

	if !cadence.ValidForCharge() {
		return nil, &domain.ErrValidation{Field: "recurrence", Message: "must be monthly, quarterly or yearly"}
	}
	return s.setRecurrence(ctx, id, &cadence)
}

func (s *ObligationService) DisableRecurrence(ctx context.Context, id string) (*domain.AnnualCharge, error) {
	ctx, span := chargesTracer.Start(ctx, "ObligationService.DisableRecurrence")
	defer span.End()

	return s.setRecurrence(ctx, id, nil)
}

func (s *ObligationService) setRecurrence(ctx context.Context, id string, cadence *domain.Cadence) (*domain.AnnualCharge, error) {
	var updated *domain.AnnualCharge
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		c, err := tx.GetCharge(ctx, id)
		if err != nil {
			return err
		}
		if cadence != nil && c.IsIslamic {
			return &domain.ErrValidation{Field: "recurrence", Message: "islamic charges are generated per year"}
		}
		c.Recurrence = cadence
		if c.SeriesID == "" {
			c.SeriesID = c.ID
		}
		c.UpdatedAt = s.ledger.now().UTC()
		if err := tx.UpdateCharge(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	recurrenceLabel := "none"
	if cadence != nil {
		recurrenceLabel = string(*cadence)
	}
	s.logger.Info("annual charge recurrence changed", zap.String("charge_id", id), zap.String("recurrence", recurrenceLabel))
	return updated, nil
}

// ============================================================
// Helpers
// ============================================================

func applyChargePatch(c *domain.AnnualCharge, p *domain.AnnualChargePatch) error {
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return &domain.ErrValidation{Field: "name", Message: "is required"}
		}
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Amount != nil {
		if !p.Amount.IsPositive() {
			return &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
		}
		c.Amount = *p.Amount
	}
	if p.DueDate != nil {
		if p.DueDate.IsZero() {
			return &domain.ErrValidation{Field: "due_date", Message: "is required"}
		}
		c.DueDate = domain.DateOf(*p.DueDate)
	}
	if p.Category != nil {
		c.Category = strings.TrimSpace(*p.Category)
		if c.Category == "" {
			c.Category = DefaultChargeCategory
		}
	}
	if p.AccountID != nil {
		c.AccountID = nonEmpty(p.AccountID)
	}
	if p.ClearAccount {
		c.AccountID = nil
	}
	if p.AutoDeduct != nil {
		c.AutoDeduct = *p.AutoDeduct
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return &domain.ErrValidation{Field: "type", Message: "must be normal, obligatory or recommended"}
		}
		c.Type = *p.Type
	}
	if p.Notes != nil {
		c.Notes = strings.TrimSpace(*p.Notes)
	}
	return nil
}

func validateChargeRecurrence(c *domain.Cadence) error {
	if c == nil || *c == "" {
		return nil
	}
	if !c.ValidForCharge() {
		return &domain.ErrValidation{Field: "recurrence", Message: "must be monthly, quarterly or yearly"}
	}
	return nil
}

func cadencePtr(c *domain.Cadence) *domain.Cadence {
	if c == nil || *c == "" {
		return nil
	}
	v := *c
	return &v
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}
