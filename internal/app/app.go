// Package app wires configuration, storage and services into a runnable
// ledger shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/calendar"
	"github.com/boddenberg/pf-ledger-go/internal/config"
	"github.com/boddenberg/pf-ledger-go/internal/handler"
	"github.com/boddenberg/pf-ledger-go/internal/infra/client"
	"github.com/boddenberg/pf-ledger-go/internal/infra/memory"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pf-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pf-ledger-go/internal/infra/sqlite"
	"github.com/boddenberg/pf-ledger-go/internal/port"
	"github.com/boddenberg/pf-ledger-go/internal/service"
)

type closableStore interface {
	port.LedgerStore
	Close() error
}

// App is a fully wired ledger.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Store   port.LedgerStore

	Ledger      *service.LedgerService
	Recurring   *service.RecurrenceService
	Obligations *service.ObligationService
	Islamic     *service.IslamicService
	Calendar    *service.CalendarService
	Transfers   *service.TransferService

	store closableStore
}

// New opens the configured store and builds every service on top of it.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	metrics := observability.NewMetrics()

	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	store, err := openStore(cfg, resilienceCfg, logger)
	if err != nil {
		return nil, err
	}

	// a typed nil must not reach the calendar service
	var fetcher port.HijriTableFetcher
	if cfg.HijriTableURL != "" {
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		fetcher = client.NewHijriTableClient(httpClient, cfg.HijriTableURL, resilience.NewCircuitBreaker("hijri-table"), resilienceCfg)
		logger.Info("hijri table source configured", zap.String("url", cfg.HijriTableURL))
	}

	cal := service.NewCalendarService(calendar.NewResolver(), cfg.CacheTTL, fetcher, metrics, logger)
	ledger := service.NewLedgerService(store, metrics, logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Store:       store,
		Ledger:      ledger,
		Recurring:   service.NewRecurrenceService(store, ledger, metrics, logger),
		Obligations: service.NewObligationService(store, ledger, metrics, logger),
		Islamic:     service.NewIslamicService(store, ledger, cal.Resolver(), metrics, logger),
		Calendar:    cal,
		Transfers:   service.NewTransferService(store, ledger, metrics, logger),
		store:       store,
	}, nil
}

func openStore(cfg *config.Config, retry resilience.Config, logger *zap.Logger) (closableStore, error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using the in-memory store, data is lost on exit")
		return memory.New(), nil
	case "sqlite":
		store, err := sqlite.Open(sqlite.Options{
			Path:    cfg.DatabasePath,
			LogMode: cfg.DatabaseLogMode,
			Retry:   retry,
			Breaker: resilience.NewCircuitBreaker("sqlite"),
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.DatabasePath))
		return store, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// Services exposes the services to the HTTP router.
func (a *App) Services() handler.Services {
	return handler.Services{
		Ledger:      a.Ledger,
		Recurring:   a.Recurring,
		Obligations: a.Obligations,
		Islamic:     a.Islamic,
		Calendar:    a.Calendar,
		Transfers:   a.Transfers,
		Store:       a.Store,
	}
}

// Scheduler builds the periodic sweep for the configured local user.
func (a *App) Scheduler() *service.Scheduler {
	return service.NewScheduler(a.Recurring, a.Obligations, a.Islamic, a.Config.LocalUserID, a.Config.SweepInterval, a.Logger)
}

// SyncCalendar merges the authoritative Hijri table for the configured
// years, defaulting to the current and next year. It is a no-op without a
// table source.
func (a *App) SyncCalendar(ctx context.Context) error {
	if a.Config.HijriTableURL == "" {
		return nil
	}
	years := a.Config.HijriTableYears
	if len(years) == 0 {
		this := a.Ledger.Today().Year()
		years = []int{this, this + 1}
	}
	merged, err := a.Calendar.SyncYears(ctx, years)
	a.Logger.Info("hijri table synced", zap.Ints("years", years), zap.Int("merged", merged))
	return err
}

// Close releases the store and the calendar cache.
func (a *App) Close() error {
	a.Calendar.Close()
	return a.store.Close()
}
