// Package sqlite is the embedded, gorm-backed implementation of
// port.LedgerStore.
//
// Atomic units are serialized through a single-writer mutex and run inside a
// gorm transaction, so a failed unit leaves no partial writes behind.
// Transient lock errors are retried with backoff; repeated storage failures
// open a circuit breaker.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pf-ledger-go/internal/port"
)

var tracer = otel.Tracer("store/sqlite")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options configures Open.
type Options struct {
	Path    string
	LogMode bool
	Retry   resilience.Config
	Breaker *gobreaker.CircuitBreaker
	Logger  *zap.Logger
}

// Store implements port.LedgerStore over sqlite.
type Store struct {
	*queries
	db     *gorm.DB
	writer sync.Mutex
	cb     *gobreaker.CircuitBreaker
	retry  resilience.Config
	logger *zap.Logger
}

// Open creates the database (and its parent directory), tunes the
// connection and migrates the schema.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker("sqlite")
	}

	inMemory := opts.Path == MemoryPath || strings.Contains(opts.Path, "mode=memory")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	gormLogger := logger.Default
	if !opts.LogMode {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(opts.Path), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	// every connection to ":memory:" is its own database
	if inMemory {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
		_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
		_, _ = sqlDB.Exec("PRAGMA synchronous = NORMAL;")
		_, _ = sqlDB.Exec("PRAGMA busy_timeout = 5000;")
	}
	_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON;")

	if err := AutoMigrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	opts.Logger.Info("sqlite store ready", zap.String("path", opts.Path))

	return &Store{
		queries: &queries{db: db},
		db:      db,
		cb:      opts.Breaker,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}, nil
}

// AutoMigrate creates or updates the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&accountRow{},
		&transactionRow{},
		&chargeRow{},
		&settingsRow{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// WithAtomicUnit runs fn inside one database transaction. The transaction is
// rolled back when fn returns an error or panics.
func (s *Store) WithAtomicUnit(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	ctx, span := tracer.Start(ctx, "Store.WithAtomicUnit")
	defer span.End()

	s.writer.Lock()
	defer s.writer.Unlock()

	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryIf(ctx, s.retry, isBusy, func() error {
			return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
				return fn(ctx, &queries{db: gtx})
			})
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("sqlite: circuit breaker rejected atomic unit", zap.Error(err))
		return &domain.ErrStorage{Op: "atomic unit", Err: err}
	}
	if err != nil && !domain.IsDomainError(err) {
		s.logger.Error("sqlite: atomic unit failed", zap.Error(err))
	}
	return err
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &domain.ErrStorage{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &domain.ErrStorage{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the underlying connections.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// mapErr turns gorm errors into domain errors.
func mapErr(op, resource, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsDomainError(err):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &domain.ErrNotFound{Resource: resource, ID: id}
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return &domain.ErrConflict{Message: fmt.Sprintf("%s already exists", resource)}
	}
	return &domain.ErrStorage{Op: op, Err: err}
}

var _ port.LedgerStore = (*Store)(nil)
