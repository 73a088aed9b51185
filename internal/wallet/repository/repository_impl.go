package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/loyara/internal/wallet/domain"
)

type repo struct{}

// Provide constructs the wallet repository.
func Provide() domain.Repository {
	return &repo{}
}

// lockSuffix returns the row-lock clause for the active dialect. sqlite has
// no FOR UPDATE; its writer lock covers the transaction.
func lockSuffix(db *gorm.DB, skipLocked bool) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	if skipLocked {
		return " FOR UPDATE SKIP LOCKED"
	}
	return " FOR UPDATE"
}

// batchOrder keeps redemption order stable: soonest expiry first,
// never-expiring batches last, ties broken by id.
const batchOrder = "ORDER BY CASE WHEN expires_at IS NULL THEN 1 ELSE 0 END, expires_at ASC, id ASC"

func (r *repo) InsertWallet(ctx context.Context, db *gorm.DB, wallet *domain.Wallet) error {
	return db.WithContext(ctx).Create(wallet).Error
}

func (r *repo) FindWalletByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Wallet, error) {
	var wallets []domain.Wallet
	if err := db.WithContext(ctx).
		Raw(`SELECT * FROM wallets WHERE user_id = ? LIMIT 1`, userID).
		Scan(&wallets).Error; err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, nil
	}
	return &wallets[0], nil
}

func (r *repo) LockWalletByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Wallet, error) {
	var wallets []domain.Wallet
	query := `SELECT * FROM wallets WHERE user_id = ?` + lockSuffix(db, false)
	if err := db.WithContext(ctx).Raw(query, userID).Scan(&wallets).Error; err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, nil
	}
	return &wallets[0], nil
}

func (r *repo) LockWalletByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Wallet, error) {
	var wallets []domain.Wallet
	query := `SELECT * FROM wallets WHERE id = ?` + lockSuffix(db, false)
	if err := db.WithContext(ctx).Raw(query, id).Scan(&wallets).Error; err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, nil
	}
	return &wallets[0], nil
}

func (r *repo) UpdateWalletTotals(ctx context.Context, db *gorm.DB, wallet *domain.Wallet) error {
	return db.WithContext(ctx).Exec(`
		UPDATE wallets
		SET balance = ?, total_earned = ?, total_burned = ?, total_expired = ?,
		    last_activity_at = ?, updated_at = ?
		WHERE id = ?`,
		wallet.Balance, wallet.TotalEarned, wallet.TotalBurned, wallet.TotalExpired,
		wallet.LastActivityAt, time.Now().UTC(), wallet.ID,
	).Error
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, batch *domain.PointBatch) error {
	return db.WithContext(ctx).Create(batch).Error
}

func (r *repo) FindBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PointBatch, error) {
	return r.findBatch(ctx, db, id, "")
}

func (r *repo) LockBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PointBatch, error) {
	return r.findBatch(ctx, db, id, lockSuffix(db, false))
}

func (r *repo) findBatch(ctx context.Context, db *gorm.DB, id snowflake.ID, suffix string) (*domain.PointBatch, error) {
	var batches []domain.PointBatch
	query := `SELECT * FROM point_batches WHERE id = ?` + suffix
	if err := db.WithContext(ctx).Raw(query, id).Scan(&batches).Error; err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}
	return &batches[0], nil
}

func (r *repo) ListActiveBatches(ctx context.Context, db *gorm.DB, walletID snowflake.ID) ([]domain.PointBatch, error) {
	return r.activeBatches(ctx, db, walletID, "")
}

func (r *repo) LockActiveBatches(ctx context.Context, db *gorm.DB, walletID snowflake.ID) ([]domain.PointBatch, error) {
	return r.activeBatches(ctx, db, walletID, lockSuffix(db, false))
}

func (r *repo) activeBatches(ctx context.Context, db *gorm.DB, walletID snowflake.ID, suffix string) ([]domain.PointBatch, error) {
	var batches []domain.PointBatch
	query := `SELECT * FROM point_batches
		WHERE wallet_id = ? AND is_expired = ? AND points > 0 ` + batchOrder + suffix
	if err := db.WithContext(ctx).Raw(query, walletID, false).Scan(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repo) DeductBatch(ctx context.Context, db *gorm.DB, id snowflake.ID, points int64, at time.Time) error {
	res := db.WithContext(ctx).Exec(`
		UPDATE point_batches
		SET points = points - ?, updated_at = ?
		WHERE id = ? AND points >= ?`,
		points, at, id, points,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) RestoreBatch(ctx context.Context, db *gorm.DB, id snowflake.ID, points int64, at time.Time) error {
	res := db.WithContext(ctx).Exec(`
		UPDATE point_batches
		SET points = points + ?, updated_at = ?
		WHERE id = ? AND is_expired = ?`,
		points, at, id, false,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) RetireBatch(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	res := db.WithContext(ctx).Exec(`
		UPDATE point_batches
		SET points = 0, is_expired = ?, updated_at = ?
		WHERE id = ? AND is_expired = ?`,
		true, at, id, false,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) LockDueBatches(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.PointBatch, error) {
	var batches []domain.PointBatch
	query := `SELECT * FROM point_batches
		WHERE is_expired = ? AND points > 0 AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at ASC, id ASC
		LIMIT ?` + lockSuffix(db, true)
	if err := db.WithContext(ctx).Raw(query, false, now, limit).Scan(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}
