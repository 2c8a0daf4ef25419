package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pf-ledger-go/internal/port"
	"github.com/boddenberg/pf-ledger-go/internal/recurrence"
)

var recurrenceTracer = otel.Tracer("service/recurrence")

// RecurrenceService materializes due instances of transaction templates.
type RecurrenceService struct {
	store   port.LedgerStore
	ledger  *LedgerService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRecurrenceService creates a new recurrence service.
func NewRecurrenceService(store port.LedgerStore, ledger *LedgerService, metrics *observability.Metrics, logger *zap.Logger) *RecurrenceService {
	return &RecurrenceService{store: store, ledger: ledger, metrics: metrics, logger: logger}
}

// ProcessRecurringTransactions materializes one instance, dated today, for
// every template of userID whose next occurrence is due, then advances the
// template. Each template is handled in its own atomic unit; failures are
// collected and never abort the sweep.
func (s *RecurrenceService) ProcessRecurringTransactions(ctx context.Context, userID string) *domain.BatchResult {
	ctx, span := recurrenceTracer.Start(ctx, "RecurrenceService.ProcessRecurringTransactions")
	defer span.End()

	result := &domain.BatchResult{Errors: []string{}}
	today := s.ledger.Today()

	templates, err := s.store.ListDueTemplates(ctx, userID, today)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list due templates: %v", err))
		s.metrics.RecordSweep("recurring", 0, 1)
		return result
	}

	for i := range templates {
		tpl := &templates[i]
		if tpl.RecurrenceEndDate != nil && today.After(*tpl.RecurrenceEndDate) {
			result.Errors = append(result.Errors, fmt.Sprintf("template %s: recurrence ended on %s",
				tpl.ID, tpl.RecurrenceEndDate.Format(domain.DateLayout)))
			continue
		}

		instance, err := s.materialize(ctx, tpl.ID)
		var conflict *domain.ErrConflict
		switch {
		case errors.As(err, &conflict):
			result.Skipped++
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("template %s: %v", tpl.ID, err))
			s.logger.Error("recurring template failed", zap.String("transaction_id", tpl.ID), zap.Error(err))
		default:
			result.Processed++
			s.logger.Info("recurring instance materialized",
				zap.String("template_id", tpl.ID),
				zap.String("transaction_id", instance.ID),
				zap.Int("period_index", instance.PeriodIndex),
			)
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.processed", result.Processed),
		attribute.Int("sweep.errors", len(result.Errors)),
	)
	s.metrics.RecordSweep("recurring", result.Processed, len(result.Errors))
	return result
}

// materialize creates the next instance of a template and advances it. The
// template is re-read inside the unit; if another sweep already advanced it
// or wrote the period's instance, ErrConflict is returned.
func (s *RecurrenceService) materialize(ctx context.Context, templateID string) (*domain.Transaction, error) {
	today := s.ledger.Today()

	var instance *domain.Transaction
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		tpl, err := tx.GetTransaction(ctx, templateID)
		if err != nil {
			return err
		}
		if !tpl.IsRecurring || tpl.NextOccurrence == nil || tpl.NextOccurrence.After(today) {
			return &domain.ErrConflict{Message: "template already advanced"}
		}

		period := tpl.PeriodIndex + 1
		if _, err := tx.FindInstance(ctx, tpl.ID, period); err == nil {
			return &domain.ErrConflict{Message: fmt.Sprintf("period %d already materialized", period)}
		} else if !isNotFound(err) {
			return err
		}

		parentID := tpl.ID
		instance, err = s.ledger.createInTx(ctx, tx, &domain.CreateTransactionRequest{
			AccountID:   tpl.AccountID,
			Amount:      tpl.Amount,
			Type:        tpl.Type,
			Category:    tpl.Category,
			Description: tpl.Description,
			Date:        &today,
			Origin:      domain.OriginRecurringInstance,
			ParentID:    &parentID,
			PeriodIndex: period,
		})
		if err != nil {
			return err
		}

		next, err := recurrence.NextDate(*tpl.NextOccurrence, tpl.RecurrenceCadence)
		if err != nil {
			return err
		}
		tpl.NextOccurrence = &next
		tpl.PeriodIndex = period
		tpl.UpdatedAt = s.ledger.now().UTC()
		return tx.UpdateTransaction(ctx, tpl)
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ListInstances returns the materialized instances of a template.
func (s *RecurrenceService) ListInstances(ctx context.Context, templateID string) ([]domain.Transaction, error) {
	ctx, span := recurrenceTracer.Start(ctx, "RecurrenceService.ListInstances")
	defer span.End()

	if _, err := s.store.GetTransaction(ctx, templateID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, domain.TransactionFilter{ParentID: templateID})
}
