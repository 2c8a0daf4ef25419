package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/service"
)

// ============================================================
// Transfers Handlers
// ============================================================

type transferBody struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	GoalName      string          `json:"goal_name"`
}

type transferFunc func(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error)

// transferHandler serves the three transfer flavours, which share a body
// and differ only in the service call.
func transferHandler(execute transferFunc, spanName string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), spanName)
		defer span.End()

		var body transferBody
		if err := decodeBody(r, &body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		date, err := parseDate(body.Date, "date")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		result, err := execute(ctx, &domain.TransferRequest{
			FromAccountID: body.FromAccountID,
			ToAccountID:   body.ToAccountID,
			Amount:        body.Amount,
			Date:          date,
			Description:   body.Description,
			GoalName:      body.GoalName,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func validateTransferHandler(svc *service.TransferService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transfers/validate")
		defer span.End()

		amount, err := queryDecimal(r, "amount")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		result, err := svc.ValidateTransfer(ctx, r.URL.Query().Get("from_account_id"), amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
