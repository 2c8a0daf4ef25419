package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

// Scheduler runs the recurring-template sweep and the auto-deduct sweep at
// startup and then on every tick, until its context is cancelled.
type Scheduler struct {
	recurring   *RecurrenceService
	obligations *ObligationService
	islamic     *IslamicService
	userID      string
	interval    time.Duration
	logger      *zap.Logger
}

// NewScheduler creates a scheduler for the local user.
func NewScheduler(recurring *RecurrenceService, obligations *ObligationService, islamic *IslamicService, userID string, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		recurring:   recurring,
		obligations: obligations,
		islamic:     islamic,
		userID:      userID,
		interval:    interval,
		logger:      logger,
	}
}

// Run blocks until ctx is done. It always returns nil so it can run under an
// errgroup without tearing down its siblings on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduler disabled")
		return nil
	}

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// SweepReport is the combined outcome of one scheduler pass.
type SweepReport struct {
	Recurring  *domain.BatchResult `json:"recurring"`
	AutoDeduct *domain.BatchResult `json:"auto_deduct"`
}

// RunOnce runs both sweeps once.
func (s *Scheduler) RunOnce(ctx context.Context) *SweepReport {
	report := &SweepReport{
		Recurring: s.recurring.ProcessRecurringTransactions(ctx, s.userID),
	}

	settings, err := s.islamic.GetSettings(ctx)
	if err != nil {
		s.logger.Error("load islamic settings failed, using defaults", zap.Error(err))
		defaults := domain.DefaultIslamicSettings()
		settings = &defaults
	}
	report.AutoDeduct = s.obligations.ProcessDueCharges(ctx, *settings)

	s.logger.Info("sweep finished",
		zap.Int("recurring_processed", report.Recurring.Processed),
		zap.Int("recurring_skipped", report.Recurring.Skipped),
		zap.Int("recurring_errors", len(report.Recurring.Errors)),
		zap.Int("charges_processed", report.AutoDeduct.Processed),
		zap.Int("charges_errors", len(report.AutoDeduct.Errors)),
	)
	return report
}
