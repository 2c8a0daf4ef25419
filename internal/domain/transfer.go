package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Transfers
// ============================================================

// Reserved categories for transfer legs.
const (
	CategoryTransfer = "transfer"
	CategorySavings  = "savings"
)

// TransferRequest is the body for POST /v1/transfers and its savings variants.
type TransferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          *time.Time      `json:"date,omitempty"`
	Description   string          `json:"description,omitempty"`
	GoalName      string          `json:"goal_name,omitempty"`
}

// TransferResult is returned once both legs are committed.
type TransferResult struct {
	TransferID  string            `json:"transfer_id"`
	Origin      TransactionOrigin `json:"origin"`
	Debit       *Transaction      `json:"debit"`
	Credit      *Transaction      `json:"credit"`
	FromBalance decimal.Decimal   `json:"from_balance"`
	ToBalance   decimal.Decimal   `json:"to_balance"`
}

// TransferValidation is returned by ValidateTransfer.
type TransferValidation struct {
	IsValid        bool             `json:"is_valid"`
	Message        string           `json:"message,omitempty"`
	CurrentBalance *decimal.Decimal `json:"current_balance,omitempty"`
}
