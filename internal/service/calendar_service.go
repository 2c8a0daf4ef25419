package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/calendar"
	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pf-ledger-go/internal/port"
)

var calendarTracer = otel.Tracer("service/calendar")

// CalendarService exposes Hijri date resolution and the holiday catalog, and
// extends the lookup table from an authoritative source.
type CalendarService struct {
	table   *calendar.TableResolver
	cached  *calendar.CachedResolver
	fetcher port.HijriTableFetcher
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCalendarService creates a calendar service. fetcher may be nil, in which
// case SyncYears is unavailable.
func NewCalendarService(table *calendar.TableResolver, cacheTTL time.Duration, fetcher port.HijriTableFetcher, metrics *observability.Metrics, logger *zap.Logger) *CalendarService {
	return &CalendarService{
		table:   table,
		cached:  calendar.NewCachedResolver(table, cacheTTL),
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolver is the memoized resolver shared with the obligation services.
func (s *CalendarService) Resolver() calendar.Resolver {
	return s.cached
}

func (s *CalendarService) Resolve(ctx context.Context, hijriMonth, hijriDay, gregorianYear int) (time.Time, error) {
	_, span := calendarTracer.Start(ctx, "CalendarService.Resolve")
	defer span.End()

	return s.cached.Resolve(hijriMonth, hijriDay, gregorianYear)
}

func (s *CalendarService) IsHoliday(ctx context.Context, date time.Time) (domain.HolidayMatch, error) {
	_, span := calendarTracer.Start(ctx, "CalendarService.IsHoliday")
	defer span.End()

	return calendar.IsHoliday(s.cached, date)
}

func (s *CalendarService) Holidays() []domain.IslamicHoliday {
	return calendar.DefaultHolidays()
}

func (s *CalendarService) MonthName(month int) (domain.MonthName, error) {
	return calendar.MonthName(month)
}

func (s *CalendarService) MonthNames() []domain.MonthName {
	return calendar.MonthNames()
}

// SyncYears fetches the given years from the authoritative source and merges
// them into the lookup table. A failing year does not stop the others; the
// merged entry count and the joined errors are returned.
func (s *CalendarService) SyncYears(ctx context.Context, years []int) (int, error) {
	ctx, span := calendarTracer.Start(ctx, "CalendarService.SyncYears")
	defer span.End()

	if s.fetcher == nil {
		return 0, &domain.ErrValidation{Field: "hijri_table_url", Message: "no authoritative source configured"}
	}

	merged := 0
	var errs []error
	for _, year := range years {
		entries, err := s.fetcher.FetchYear(ctx, year)
		if err != nil {
			s.metrics.IncrExternalError("hijri-table")
			s.logger.Warn("hijri table fetch failed", zap.Int("year", year), zap.Error(err))
			errs = append(errs, fmt.Errorf("year %d: %w", year, err))
			continue
		}
		n, err := s.table.Merge(entries)
		if err != nil {
			errs = append(errs, fmt.Errorf("year %d: %w", year, err))
			continue
		}
		merged += n
	}

	if merged > 0 {
		s.cached.Invalidate()
	}
	span.SetAttributes(attribute.Int("calendar.merged", merged))
	s.logger.Info("hijri table synced", zap.Ints("years", years), zap.Int("merged", merged), zap.Int("errors", len(errs)))
	return merged, errors.Join(errs...)
}

// Close releases the resolution cache.
func (s *CalendarService) Close() {
	s.cached.Close()
}
