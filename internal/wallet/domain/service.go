package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service exposes read access to wallets. All balance mutations go through
// the ledger coordinator.
type Service interface {
	GetByUserID(ctx context.Context, userID string) (*Response, error)
	GetActiveBatches(ctx context.Context, userID string) ([]BatchResponse, error)
}

type Response struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Balance        int64      `json:"balance"`
	TotalEarned    int64      `json:"total_earned"`
	TotalBurned    int64      `json:"total_burned"`
	TotalExpired   int64      `json:"total_expired"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type BatchResponse struct {
	ID            string     `json:"id"`
	WalletID      string     `json:"wallet_id"`
	Points        int64      `json:"points"`
	EarnedAt      time.Time  `json:"earned_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	TransactionID string     `json:"transaction_id"`
}

var (
	ErrInvalidUser = errors.New("invalid_user")
	ErrNotFound    = errors.New("wallet_not_found")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
