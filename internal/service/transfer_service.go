package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pf-ledger-go/internal/port"
)

var transferTracer = otel.Tracer("service/transfer")

// TransferService moves money between two accounts as a pair of legs that
// are committed together or not at all.
type TransferService struct {
	store   port.LedgerStore
	ledger  *LedgerService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewTransferService creates a new transfer service.
func NewTransferService(store port.LedgerStore, ledger *LedgerService, metrics *observability.Metrics, logger *zap.Logger) *TransferService {
	return &TransferService{store: store, ledger: ledger, metrics: metrics, logger: logger}
}

// ExecuteTransfer moves req.Amount from one account to another.
func (s *TransferService) ExecuteTransfer(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	ctx, span := transferTracer.Start(ctx, "TransferService.ExecuteTransfer")
	defer span.End()

	return s.execute(ctx, req, domain.OriginTransfer, domain.CategoryTransfer, strings.TrimSpace(req.Description))
}

// ExecuteSavingsTransfer contributes to a savings goal. The goal label is
// embedded in the leg descriptions.
func (s *TransferService) ExecuteSavingsTransfer(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	ctx, span := transferTracer.Start(ctx, "TransferService.ExecuteSavingsTransfer")
	defer span.End()

	goal := strings.TrimSpace(req.GoalName)
	if goal == "" {
		return nil, &domain.ErrValidation{Field: "goal_name", Message: "is required"}
	}
	return s.execute(ctx, req, domain.OriginSavingsContribution, domain.CategorySavings, "Savings: "+goal)
}

// ExecuteSavingsRefund moves money back out of a savings goal.
func (s *TransferService) ExecuteSavingsRefund(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	ctx, span := transferTracer.Start(ctx, "TransferService.ExecuteSavingsRefund")
	defer span.End()

	goal := strings.TrimSpace(req.GoalName)
	if goal == "" {
		return nil, &domain.ErrValidation{Field: "goal_name", Message: "is required"}
	}
	return s.execute(ctx, req, domain.OriginSavingsRefund, domain.CategorySavings, "Savings refund: "+goal)
}

// ValidateTransfer checks whether fromAccountID could send amount right now.
// Business outcomes are reported in the result.
func (s *TransferService) ValidateTransfer(ctx context.Context, fromAccountID string, amount decimal.Decimal) (*domain.TransferValidation, error) {
	ctx, span := transferTracer.Start(ctx, "TransferService.ValidateTransfer")
	defer span.End()

	if !amount.IsPositive() {
		return &domain.TransferValidation{Message: "amount must be greater than zero"}, nil
	}
	acc, err := s.store.GetAccount(ctx, fromAccountID)
	if err != nil {
		if isNotFound(err) {
			return &domain.TransferValidation{Message: "source account not found"}, nil
		}
		return nil, err
	}
	balance := acc.Balance
	if balance.LessThan(amount) {
		return &domain.TransferValidation{
			Message:        fmt.Sprintf("insufficient funds: available %s, required %s", balance.StringFixed(2), amount.StringFixed(2)),
			CurrentBalance: &balance,
		}, nil
	}
	return &domain.TransferValidation{IsValid: true, CurrentBalance: &balance}, nil
}

func (s *TransferService) execute(ctx context.Context, req *domain.TransferRequest, origin domain.TransactionOrigin, category, description string) (*domain.TransferResult, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("transfer.from", req.FromAccountID),
		attribute.String("transfer.to", req.ToAccountID),
		attribute.String("transfer.origin", string(origin)),
	)

	if err := validateTransfer(req); err != nil {
		s.metrics.IncrTransfer("failed")
		return nil, err
	}
	if description == "" {
		description = "Transfer"
	}

	date := s.ledger.Today()
	if req.Date != nil {
		date = domain.DateOf(*req.Date)
	}
	transferID := uuid.NewString()
	result := &domain.TransferResult{TransferID: transferID, Origin: origin}

	err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		from, err := tx.GetAccount(ctx, req.FromAccountID)
		if err != nil {
			return err
		}
		if _, err := tx.GetAccount(ctx, req.ToAccountID); err != nil {
			return err
		}
		if from.Balance.LessThan(req.Amount) {
			return &domain.ErrInsufficientFunds{AccountID: from.ID, Available: from.Balance, Required: req.Amount}
		}

		result.Debit, err = s.ledger.createInTx(ctx, tx, &domain.CreateTransactionRequest{
			AccountID:   req.FromAccountID,
			Amount:      req.Amount,
			Type:        domain.TransactionExpense,
			Category:    category,
			Description: description,
			Date:        &date,
			Origin:      origin,
			TransferID:  &transferID,
		})
		if err != nil {
			return fmt.Errorf("debit leg: %w", err)
		}
		result.Credit, err = s.ledger.createInTx(ctx, tx, &domain.CreateTransactionRequest{
			AccountID:   req.ToAccountID,
			Amount:      req.Amount,
			Type:        domain.TransactionIncome,
			Category:    category,
			Description: description,
			Date:        &date,
			Origin:      origin,
			TransferID:  &transferID,
		})
		if err != nil {
			return fmt.Errorf("credit leg: %w", err)
		}

		fromAfter, err := tx.GetAccount(ctx, req.FromAccountID)
		if err != nil {
			return err
		}
		toAfter, err := tx.GetAccount(ctx, req.ToAccountID)
		if err != nil {
			return err
		}
		result.FromBalance = fromAfter.Balance
		result.ToBalance = toAfter.Balance
		return nil
	})
	if err != nil {
		s.metrics.IncrTransfer("failed")
		s.logger.Warn("transfer failed",
			zap.String("from_account_id", req.FromAccountID),
			zap.String("to_account_id", req.ToAccountID),
			zap.String("amount", req.Amount.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.IncrTransfer("completed")
	s.logger.Info("transfer completed",
		zap.String("transfer_id", transferID),
		zap.String("origin", string(origin)),
		zap.String("from_account_id", req.FromAccountID),
		zap.String("to_account_id", req.ToAccountID),
		zap.String("amount", req.Amount.String()),
	)
	return result, nil
}

func validateTransfer(req *domain.TransferRequest) error {
	if strings.TrimSpace(req.FromAccountID) == "" {
		return &domain.ErrValidation{Field: "from_account_id", Message: "is required"}
	}
	if strings.TrimSpace(req.ToAccountID) == "" {
		return &domain.ErrValidation{Field: "to_account_id", Message: "is required"}
	}
	if req.FromAccountID == req.ToAccountID {
		return &domain.ErrValidation{Field: "to_account_id", Message: "must differ from the source account"}
	}
	if !req.Amount.IsPositive() {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	return nil
}
