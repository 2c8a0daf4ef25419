package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error types for consistent error handling across the ledger.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInsufficientFunds indicates not enough balance for the operation.
type ErrInsufficientFunds struct {
	AccountID string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds on account %s: available=%s required=%s",
		e.AccountID, e.Available.StringFixed(2), e.Required.StringFixed(2))
}

// ErrConflict indicates the target of a generation step already exists.
// Batch generators count it as a skip, never as a failure.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrStorage wraps a failure of the underlying datastore.
type ErrStorage struct {
	Op  string
	Err error
}

func (e *ErrStorage) Error() string {
	return fmt.Sprintf("storage error [%s]: %v", e.Op, e.Err)
}

func (e *ErrStorage) Unwrap() error {
	return e.Err
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrUnauthorized indicates an invalid or missing bearer token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// IsDomainError reports whether err is a business-rule outcome rather than an
// infrastructure failure. Circuit breakers and retries ignore domain errors.
func IsDomainError(err error) bool {
	var (
		notFound     *ErrNotFound
		validation   *ErrValidation
		insufficient *ErrInsufficientFunds
		conflict     *ErrConflict
		unauthorized *ErrUnauthorized
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &validation) ||
		errors.As(err, &insufficient) ||
		errors.As(err, &conflict) ||
		errors.As(err, &unauthorized)
}
