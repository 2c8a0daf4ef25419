package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/service"
)

// ============================================================
// Transactions Handlers
// ============================================================

// transactionBody is the wire form of a new transaction; dates are YYYY-MM-DD.
type transactionBody struct {
	AccountID         string                 `json:"account_id"`
	Amount            decimal.Decimal        `json:"amount"`
	Type              domain.TransactionType `json:"type"`
	Category          string                 `json:"category"`
	Description       string                 `json:"description"`
	Date              string                 `json:"date"`
	IsRecurring       bool                   `json:"is_recurring"`
	RecurrenceCadence domain.Cadence         `json:"recurrence_cadence"`
	RecurrenceEndDate string                 `json:"recurrence_end_date"`
}

func (b transactionBody) toRequest() (*domain.CreateTransactionRequest, error) {
	date, err := parseDate(b.Date, "date")
	if err != nil {
		return nil, err
	}
	end, err := parseDate(b.RecurrenceEndDate, "recurrence_end_date")
	if err != nil {
		return nil, err
	}
	return &domain.CreateTransactionRequest{
		AccountID:         b.AccountID,
		Amount:            b.Amount,
		Type:              b.Type,
		Category:          b.Category,
		Description:       b.Description,
		Date:              date,
		IsRecurring:       b.IsRecurring,
		RecurrenceCadence: b.RecurrenceCadence,
		RecurrenceEndDate: end,
	}, nil
}

type transactionPatchBody struct {
	AccountID         *string                 `json:"account_id"`
	Amount            *decimal.Decimal        `json:"amount"`
	Type              *domain.TransactionType `json:"type"`
	Category          *string                 `json:"category"`
	Description       *string                 `json:"description"`
	Date              *string                 `json:"date"`
	IsRecurring       *bool                   `json:"is_recurring"`
	RecurrenceCadence *domain.Cadence         `json:"recurrence_cadence"`
	RecurrenceEndDate *string                 `json:"recurrence_end_date"`
	ClearEndDate      bool                    `json:"clear_recurrence_end_date"`
}

func (b transactionPatchBody) toPatch() (*domain.TransactionPatch, error) {
	date, err := parseDatePtr(b.Date, "date")
	if err != nil {
		return nil, err
	}
	end, err := parseDatePtr(b.RecurrenceEndDate, "recurrence_end_date")
	if err != nil {
		return nil, err
	}
	return &domain.TransactionPatch{
		AccountID:         b.AccountID,
		Amount:            b.Amount,
		Type:              b.Type,
		Category:          b.Category,
		Description:       b.Description,
		Date:              date,
		IsRecurring:       b.IsRecurring,
		RecurrenceCadence: b.RecurrenceCadence,
		RecurrenceEndDate: end,
		ClearEndDate:      b.ClearEndDate,
	}, nil
}

func transactionFilterFromQuery(r *http.Request) (domain.TransactionFilter, error) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"), "from")
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	to, err := parseDate(q.Get("to"), "to")
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	templates, err := queryBool(r, "templates")
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	return domain.TransactionFilter{
		From:          from,
		To:            to,
		Origin:        domain.TransactionOrigin(q.Get("origin")),
		TemplatesOnly: templates != nil && *templates,
	}, nil
}

func writeTransactions(w http.ResponseWriter, txs []domain.Transaction) {
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func createTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()

		var body transactionBody
		if err := decodeBody(r, &body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req, err := body.toRequest()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		txn, err := svc.CreateTransaction(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, txn)
	}
}

func listTransactionsHandler(svc *service.LedgerService, localUser string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions")
		defer span.End()

		filter, err := transactionFilterFromQuery(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		filter.AccountID = r.URL.Query().Get("account_id")
		filter.UserID = UserIDFromContext(ctx, localUser)

		txs, err := svc.ListTransactions(ctx, filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeTransactions(w, txs)
	}
}

func getTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/{id}")
		defer span.End()

		txn, err := svc.GetTransactionByID(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, txn)
	}
}

func updateTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/transactions/{id}")
		defer span.End()

		var body transactionPatchBody
		if err := decodeBody(r, &body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		patch, err := body.toPatch()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		txn, err := svc.UpdateTransaction(ctx, chi.URLParam(r, "id"), patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, txn)
	}
}

func deleteTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/transactions/{id}")
		defer span.End()

		if err := svc.DeleteTransaction(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Recurring Handlers
// ============================================================

func processRecurringHandler(svc *service.RecurrenceService, localUser string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/recurring/process")
		defer span.End()

		result := svc.ProcessRecurringTransactions(ctx, UserIDFromContext(ctx, localUser))
		if len(result.Errors) > 0 {
			logger.Warn("recurring sweep finished with errors", zap.Int("errors", len(result.Errors)))
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func listInstancesHandler(svc *service.RecurrenceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/{id}/instances")
		defer span.End()

		txs, err := svc.ListInstances(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeTransactions(w, txs)
	}
}
