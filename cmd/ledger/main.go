package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/pf-ledger-go/internal/app"
	"github.com/boddenberg/pf-ledger-go/internal/config"
	"github.com/boddenberg/pf-ledger-go/internal/handler"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
)

func main() {
	// --- Config ---
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("database_path", cfg.DatabasePath),
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Bool("auth_enabled", cfg.AuthSecret != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, "pf-ledger")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Services ---
	ledger, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build ledger", zap.Error(err))
	}
	defer ledger.Close()

	if err := ledger.SyncCalendar(ctx); err != nil {
		logger.Warn("hijri table sync incomplete, using approximation", zap.Error(err))
	}

	// --- Router ---
	router := handler.NewRouter(ledger.Services(), handler.Options{
		AuthSecret:          cfg.AuthSecret,
		LocalUserID:         cfg.LocalUserID,
		MaxConcurrentWrites: cfg.MaxConcurrency,
	}, ledger.Metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return ledger.Scheduler().Run(gCtx)
	})

	// --- Graceful shutdown ---
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("ledger stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
