package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows transaction history queries.
type ListFilter struct {
	WalletID   snowflake.ID
	Type       TransactionType
	MerchantID snowflake.ID
	AfterID    snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)

	// MarkReversed moves a COMPLETED row to REVERSED; RowsAffected == 0
	// means the row was not COMPLETED anymore.
	MarkReversed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)

	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Transaction, error)
}
