package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	return nil
}

// parseDate parses an optional YYYY-MM-DD value; empty means absent.
func parseDate(value, field string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(value)
	if err != nil {
		return nil, &domain.ErrValidation{Field: field, Message: "invalid format, use YYYY-MM-DD"}
	}
	return &d, nil
}

func parseDatePtr(value *string, field string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	return parseDate(*value, field)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &domain.ErrValidation{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, &domain.ErrValidation{Field: key, Message: "must be true or false"}
	}
	return &b, nil
}

func queryDecimal(r *http.Request, key string) (decimal.Decimal, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return decimal.Zero, &domain.ErrValidation{Field: key, Message: "is required"}
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &domain.ErrValidation{Field: key, Message: "must be a decimal number"}
	}
	return d, nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var insufficientFunds *domain.ErrInsufficientFunds
	var conflict *domain.ErrConflict
	var unauthorized *domain.ErrUnauthorized
	var external *domain.ErrExternalService
	var storage *domain.ErrStorage

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field})
	case errors.As(err, &insufficientFunds):
		logger.Warn("insufficient funds",
			zap.String("account_id", insufficientFunds.AccountID),
			zap.String("available", insufficientFunds.Available.String()),
			zap.String("required", insufficientFunds.Required.String()),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &storage):
		logger.Error("storage error", zap.String("op", storage.Op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage error")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
