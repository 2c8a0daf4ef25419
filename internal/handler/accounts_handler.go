package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/service"
)

// ============================================================
// Accounts Handlers
// ============================================================

func createAccountHandler(svc *service.LedgerService, localUser string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts")
		defer span.End()

		var req domain.CreateAccountRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		// an authenticated caller can only open accounts for itself
		req.UserID = UserIDFromContext(ctx, firstNonEmpty(req.UserID, localUser))

		account, err := svc.CreateAccount(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	}
}

func listAccountsHandler(svc *service.LedgerService, localUser string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts")
		defer span.End()

		accounts, err := svc.ListAccounts(ctx, UserIDFromContext(ctx, localUser))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if accounts == nil {
			accounts = []domain.Account{}
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func getAccountHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}")
		defer span.End()

		account, err := svc.GetAccount(ctx, chi.URLParam(r, "accountId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func listAccountTransactionsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/transactions")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		if _, err := svc.GetAccount(ctx, accountID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		filter, err := transactionFilterFromQuery(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		filter.AccountID = accountID

		txs, err := svc.ListTransactions(ctx, filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeTransactions(w, txs)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
