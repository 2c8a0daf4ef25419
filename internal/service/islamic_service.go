package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/calendar"
	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pf-ledger-go/internal/port"
)

var islamicTracer = otel.Tracer("service/islamic")

// CategoryIslamic tags every generated islamic charge.
const CategoryIslamic = "islamic"

// Supported Gregorian range for generation.
const (
	minGenerationYear = 1900
	maxGenerationYear = 2200
)

// IslamicService generates and manages annual charges for islamic holidays.
// Generation is gated by an explicit IslamicSettings value.
type IslamicService struct {
	store    port.LedgerStore
	ledger   *LedgerService
	resolver calendar.Resolver
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewIslamicService creates a new islamic obligation service.
func NewIslamicService(store port.LedgerStore, ledger *LedgerService, resolver calendar.Resolver, metrics *observability.Metrics, logger *zap.Logger) *IslamicService {
	return &IslamicService{store: store, ledger: ledger, resolver: resolver, metrics: metrics, logger: logger}
}

// ============================================================
// Settings
// ============================================================

func (s *IslamicService) GetSettings(ctx context.Context) (*domain.IslamicSettings, error) {
	ctx, span := islamicTracer.Start(ctx, "IslamicService.GetSettings")
	defer span.End()

	return s.store.GetIslamicSettings(ctx)
}

// SaveSettings validates and persists the settings. The payment account must
// exist and overrides must name known holidays with positive amounts.
func (s *IslamicService) SaveSettings(ctx context.Context, settings *domain.IslamicSettings) (*domain.IslamicSettings, error) {
	ctx, span := islamicTracer.Start(ctx, "IslamicService.SaveSettings")
	defer span.End()

	settings.AccountID = nonEmpty(settings.AccountID)
	for id, amount := range settings.AmountOverrides {
		if _, ok := calendar.HolidayByID(id); !ok {
			return nil, &domain.ErrValidation{Field: "amount_overrides", Message: fmt.Sprintf("unknown holiday %q", id)}
		}
		if !amount.IsPositive() {
			return nil, &domain.ErrValidation{Field: "amount_overrides", Message: fmt.Sprintf("amount for %q must be greater than zero", id)}
		}
	}
	if settings.AutoDeduct && settings.AccountID == nil {
		return nil, &domain.ErrValidation{Field: "auto_deduct", Message: "requires an account"}
	}

	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		if settings.AccountID != nil {
			if _, err := tx.GetAccount(ctx, *settings.AccountID); err != nil {
				return err
			}
		}
		return tx.SaveIslamicSettings(ctx, settings)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("islamic settings saved",
		zap.Bool("generation_allowed", settings.GenerationAllowed),
		zap.Bool("include_recommended", settings.IncludeRecommended),
		zap.Int("overrides", len(settings.AmountOverrides)),
	)
	return settings, nil
}

// SetGenerationAllowed flips the gate and persists it.
func (s *IslamicService) SetGenerationAllowed(ctx context.Context, allowed bool) (*domain.IslamicSettings, error) {
	ctx, span := islamicTracer.Start(ctx, "IslamicService.SetGenerationAllowed")
	defer span.End()
	span.SetAttributes(attribute.Bool("islamic.generation_allowed", allowed))

	var saved *domain.IslamicSettings
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		settings, err := tx.GetIslamicSettings(ctx)
		if err != nil {
			return err
		}
		settings.GenerationAllowed = allowed
		if err := tx.SaveIslamicSettings(ctx, settings); err != nil {
			return err
		}
		saved = settings
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("islamic generation gate changed", zap.Bool("generation_allowed", allowed))
	return saved, nil
}

// ============================================================
// Generation
// ============================================================

// GenerateChargesForYear creates one annual charge per holiday missing for the
// Gregorian year. Existing charges are skipped, so repeated calls are
// idempotent. With the gate disabled nothing is written.
func (s *IslamicService) GenerateChargesForYear(ctx context.Context, year int, settings domain.IslamicSettings) (*domain.IslamicGenerationResult, error) {
	ctx, span := islamicTracer.Start(ctx, "IslamicService.GenerateChargesForYear")
	defer span.End()
	span.SetAttributes(attribute.Int("islamic.year", year))

	if year < minGenerationYear || year > maxGenerationYear {
		return nil, &domain.ErrValidation{Field: "year", Message: fmt.Sprintf("must be between %d and %d", minGenerationYear, maxGenerationYear)}
	}

	result := &domain.IslamicGenerationResult{Year: year, Errors: []string{}}
	if !settings.GenerationAllowed {
		result.Disabled = true
		s.logger.Info("islamic generation skipped, gate disabled", zap.Int("year", year))
		return result, nil
	}

	for _, h := range holidaysFor(settings) {
		due, err := s.resolver.Resolve(h.HijriMonth, h.HijriDay, year)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", h.ID, err))
			continue
		}
		amount := settings.AmountFor(h)
		if !amount.IsPositive() {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: amount must be greater than zero", h.ID))
			continue
		}

		err = s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
			if _, err := tx.FindIslamicCharge(ctx, h.ID, year); err == nil {
				return &domain.ErrConflict{Message: "already generated"}
			} else if !isNotFound(err) {
				return err
			}
			return tx.InsertCharge(ctx, s.newIslamicCharge(h, year, due, settings))
		})

		var conflict *domain.ErrConflict
		switch {
		case errors.As(err, &conflict):
			result.Skipped++
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", h.ID, err))
			s.logger.Error("islamic charge generation failed", zap.String("holiday_id", h.ID), zap.Error(err))
		default:
			result.Created++
		}
	}

	s.metrics.AddChargesGenerated("islamic", result.Created)
	s.logger.Info("islamic charges generated",
		zap.Int("year", year),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (s *IslamicService) newIslamicCharge(h domain.IslamicHoliday, year int, due time.Time, settings domain.IslamicSettings) *domain.AnnualCharge {
	now := s.ledger.now().UTC()
	id := uuid.NewString()
	holidayID := h.ID
	account := nonEmpty(settings.AccountID)
	return &domain.AnnualCharge{
		ID:               id,
		Name:             h.Name,
		Amount:           settings.AmountFor(h),
		DueDate:          domain.DateOf(due),
		Category:         CategoryIslamic,
		AccountID:        account,
		AutoDeduct:       settings.AutoDeduct && account != nil,
		IsIslamic:        true,
		IslamicHolidayID: &holidayID,
		IslamicYear:      year,
		Type:             h.Type.ChargeType(),
		SeriesID:         id,
		Notes:            h.NativeName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// DeleteAllIslamicCharges removes every generated islamic charge.
func (s *IslamicService) DeleteAllIslamicCharges(ctx context.Context) (int, error) {
	ctx, span := islamicTracer.Start(ctx, "IslamicService.DeleteAllIslamicCharges")
	defer span.End()

	var deleted int
	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		var err error
		deleted, err = tx.DeleteIslamicCharges(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("islamic charges deleted", zap.Int("deleted", deleted))
	return deleted, nil
}

// ListIslamicCharges returns the holidays of a year with their resolved date,
// joined with the generated charge if any. Nothing is visible while the gate
// is disabled.
func (s *IslamicService) ListIslamicCharges(ctx context.Context, year int, settings domain.IslamicSettings) ([]domain.IslamicCharge, error) {
	ctx, span := islamicTracer.Start(ctx, "IslamicService.ListIslamicCharges")
	defer span.End()

	out := []domain.IslamicCharge{}
	if !settings.GenerationAllowed {
		return out, nil
	}

	for _, h := range holidaysFor(settings) {
		date, err := s.resolver.Resolve(h.HijriMonth, h.HijriDay, year)
		if err != nil {
			return nil, err
		}
		view := domain.IslamicCharge{
			Holiday:        h,
			Year:           year,
			CalculatedDate: date,
			Amount:         settings.AmountFor(h),
		}
		c, err := s.store.FindIslamicCharge(ctx, h.ID, year)
		switch {
		case err == nil:
			id := c.ID
			view.ChargeID = &id
			view.Amount = c.Amount
			view.IsPaid = c.IsPaid
		case !isNotFound(err):
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// holidaysFor returns the catalog filtered by the settings.
func holidaysFor(settings domain.IslamicSettings) []domain.IslamicHoliday {
	all := calendar.DefaultHolidays()
	out := make([]domain.IslamicHoliday, 0, len(all))
	for _, h := range all {
		if h.Type == domain.HolidayRecommended && !settings.IncludeRecommended {
			continue
		}
		out = append(out, h)
	}
	return out
}
