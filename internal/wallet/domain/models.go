package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Wallet is the authoritative running balance and lifetime counters for one
// user. Invariant: Balance == TotalEarned - TotalBurned - TotalExpired, and
// Balance == sum of live point batch points. Only the ledger coordinator
// writes these fields.
type Wallet struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID `json:"user_id" gorm:"not null;uniqueIndex:ux_wallets_user"`
	Balance        int64        `json:"balance" gorm:"not null;default:0"`
	TotalEarned    int64        `json:"total_earned" gorm:"not null;default:0"`
	TotalBurned    int64        `json:"total_burned" gorm:"not null;default:0"`
	TotalExpired   int64        `json:"total_expired" gorm:"not null;default:0"`
	LastActivityAt *time.Time   `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

// PointBatch is a quantum of earned points with its own expiry, created by
// exactly one EARN transaction and drained in expiry order by burns. A fully
// drained batch stays on record with Points == 0.
type PointBatch struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	WalletID      snowflake.ID `json:"wallet_id" gorm:"not null;index:ix_point_batches_wallet"`
	Points        int64        `json:"points" gorm:"not null"`
	EarnedAt      time.Time    `json:"earned_at" gorm:"not null"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty" gorm:"index:ix_point_batches_expires"`
	IsExpired     bool         `json:"is_expired" gorm:"not null;default:false"`
	TransactionID snowflake.ID `json:"transaction_id" gorm:"not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PointBatch) TableName() string { return "point_batches" }

// Live reports whether the batch still holds redeemable points.
func (b PointBatch) Live() bool {
	return !b.IsExpired && b.Points > 0
}
