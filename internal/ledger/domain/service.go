package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/loyara/pkg/db/pagination"
)

// Service is the ledger transaction coordinator. Every wallet mutation in
// the system goes through one of these operations, each atomic: the
// transaction row, the batch changes, and the wallet totals commit together
// or not at all.
type Service interface {
	Earn(ctx context.Context, req EarnRequest) (*TransactionResponse, error)
	Burn(ctx context.Context, req BurnRequest) (*TransactionResponse, error)

	// RetireExpiredBatch zeroes one overdue batch and moves its points from
	// balance to totalExpired. Used by the expiry sweeper; safe to call
	// concurrently, the second caller sees ErrBatchNotExpirable.
	RetireExpiredBatch(ctx context.Context, batchID snowflake.ID) (*TransactionResponse, error)

	// Reverse flips a COMPLETED transaction to REVERSED and writes an
	// opposing ADJUSTMENT row. The original row is never edited otherwise.
	Reverse(ctx context.Context, transactionID snowflake.ID) (*TransactionResponse, error)

	GetTransactions(ctx context.Context, req ListRequest) (*ListResponse, error)
	GetTransaction(ctx context.Context, id snowflake.ID) (*TransactionResponse, error)
}

type EarnRequest struct {
	UserID      string         `json:"user_id"`
	MerchantID  string         `json:"merchant_id"`
	Amount      int64          `json:"amount"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type BurnRequest struct {
	UserID      string         `json:"user_id"`
	MerchantID  string         `json:"merchant_id"`
	Points      int64          `json:"points"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ListRequest struct {
	UserID     string `form:"-"`
	Type       string `form:"type"`
	MerchantID string `form:"merchant_id"`
	pagination.Pagination
}

type TransactionResponse struct {
	ID            string            `json:"id"`
	WalletID      string            `json:"wallet_id"`
	MerchantID    string            `json:"merchant_id,omitempty"`
	RuleID        string            `json:"rule_id,omitempty"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Points        int64             `json:"points"`
	Amount        *int64            `json:"amount,omitempty"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Reference     string            `json:"reference"`
	Description   string            `json:"description,omitempty"`
	Deductions    []BatchDeduction  `json:"deductions,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

type ListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	PageInfo     pagination.PageInfo   `json:"page_info"`
}

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidMerchant     = errors.New("invalid_merchant")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidPoints       = errors.New("invalid_points")
	ErrInvalidTransaction  = errors.New("invalid_transaction")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrWalletNotFound      = errors.New("wallet_not_found")
	ErrMerchantInactive    = errors.New("merchant_inactive")
	ErrBelowMinimum        = errors.New("below_minimum")
	ErrBurnLimitExceeded   = errors.New("burn_limit_exceeded")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrBatchNotFound       = errors.New("batch_not_found")
	ErrBatchNotExpirable   = errors.New("batch_not_expirable")
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrNotReversible       = errors.New("transaction_not_reversible")
	ErrConflict            = errors.New("conflict")
)
