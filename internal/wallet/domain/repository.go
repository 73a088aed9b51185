package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the persistence surface for wallets and their point batches.
// Mutating calls are made inside the coordinator's transaction; the db handle
// passed in is that transaction.
type Repository interface {
	InsertWallet(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	FindWalletByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)

	// LockWalletByUserID loads the wallet with a row lock so same-wallet
	// operations serialize.
	LockWalletByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)
	LockWalletByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Wallet, error)
	UpdateWalletTotals(ctx context.Context, db *gorm.DB, wallet *Wallet) error

	InsertBatch(ctx context.Context, db *gorm.DB, batch *PointBatch) error
	FindBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PointBatch, error)
	LockBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PointBatch, error)

	// ListActiveBatches returns live batches in redemption order: expiring
	// soonest first, never-expiring last.
	ListActiveBatches(ctx context.Context, db *gorm.DB, walletID snowflake.ID) ([]PointBatch, error)
	LockActiveBatches(ctx context.Context, db *gorm.DB, walletID snowflake.ID) ([]PointBatch, error)

	DeductBatch(ctx context.Context, db *gorm.DB, id snowflake.ID, points int64, at time.Time) error

	// RestoreBatch returns previously deducted points to a batch that has
	// not expired in the meantime.
	RestoreBatch(ctx context.Context, db *gorm.DB, id snowflake.ID, points int64, at time.Time) error
	RetireBatch(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	// LockDueBatches claims batches past their expiry for the sweep, skipping
	// rows another sweeper already holds.
	LockDueBatches(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]PointBatch, error)
}
