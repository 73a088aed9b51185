package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/loyara/internal/ledger/domain"
)

type repo struct{}

// Provide constructs the ledger transaction repository.
func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	return r.findByID(ctx, db, id, "")
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	suffix := ""
	if db.Dialector.Name() != "sqlite" {
		suffix = " FOR UPDATE"
	}
	return r.findByID(ctx, db, id, suffix)
}

func (r *repo) findByID(ctx context.Context, db *gorm.DB, id snowflake.ID, suffix string) (*domain.Transaction, error) {
	var rows []domain.Transaction
	query := `SELECT * FROM ledger_transactions WHERE id = ?` + suffix
	if err := db.WithContext(ctx).Raw(query, id).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) MarkReversed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(`
		UPDATE ledger_transactions
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.TransactionStatusReversed, at, id, domain.TransactionStatusCompleted,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Transaction, error) {
	conditions := []string{"wallet_id = ?"}
	args := []any{filter.WalletID}

	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.MerchantID != 0 {
		conditions = append(conditions, "merchant_id = ?")
		args = append(args, filter.MerchantID)
	}
	if filter.AfterID != 0 {
		conditions = append(conditions, "id < ?")
		args = append(args, filter.AfterID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	args = append(args, limit)

	var rows []domain.Transaction
	query := `SELECT * FROM ledger_transactions WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY id DESC LIMIT ?`
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
