package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionType classifies how a transaction moved points.
type TransactionType string

const (
	TransactionTypeEarn       TransactionType = "EARN"
	TransactionTypeBurn       TransactionType = "BURN"
	TransactionTypeExpired    TransactionType = "EXPIRED"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

// TransactionStatus is the lifecycle state of a ledger row.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusReversed  TransactionStatus = "REVERSED"
)

// Transaction is one immutable audit row. After commit the only permitted
// change is COMPLETED -> REVERSED; corrections are new ADJUSTMENT rows, never
// edits.
type Transaction struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	WalletID      snowflake.ID      `json:"wallet_id" gorm:"not null;index:ix_ledger_transactions_wallet"`
	MerchantID    *snowflake.ID     `json:"merchant_id,omitempty" gorm:"index:ix_ledger_transactions_merchant"`
	RuleID        *snowflake.ID     `json:"rule_id,omitempty"`
	Type          TransactionType   `json:"type" gorm:"type:text;not null"`
	Status        TransactionStatus `json:"status" gorm:"type:text;not null"`
	Points        int64             `json:"points" gorm:"not null"`
	Amount        *int64            `json:"amount,omitempty"`
	BalanceBefore int64             `json:"balance_before" gorm:"not null"`
	BalanceAfter  int64             `json:"balance_after" gorm:"not null"`
	Reference     string            `json:"reference" gorm:"not null;uniqueIndex:ux_ledger_transactions_reference"`
	Description   string            `json:"description"`
	Metadata      datatypes.JSON    `json:"metadata,omitempty"`
	ReversalOfID  *snowflake.ID     `json:"reversal_of_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "ledger_transactions" }
