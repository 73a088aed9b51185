package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RuleKind distinguishes earn and burn policies.
type RuleKind string

const (
	RuleKindEarn RuleKind = "EARN"
	RuleKindBurn RuleKind = "BURN"
)

// Rule converts a currency amount into points for one merchant and kind,
// within a validity window. Amounts are minor units (cents).
type Rule struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	MerchantID    snowflake.ID `json:"merchant_id" gorm:"not null;index:ix_point_rules_merchant_kind,priority:1"`
	Kind          RuleKind     `json:"kind" gorm:"type:text;not null;index:ix_point_rules_merchant_kind,priority:2"`
	PointsPerUnit int64        `json:"points_per_unit" gorm:"not null"`
	UnitAmount    int64        `json:"unit_amount" gorm:"not null"`
	MinAmount     *int64       `json:"min_amount,omitempty"`
	MaxPoints     *int64       `json:"max_points,omitempty"`
	ExpiryDays    *int         `json:"expiry_days,omitempty"`
	ValidFrom     time.Time    `json:"valid_from" gorm:"not null"`
	ValidUntil    *time.Time   `json:"valid_until,omitempty"`
	Active        bool         `json:"active" gorm:"not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Rule) TableName() string { return "point_rules" }

// ContainsInstant reports whether the rule's validity window covers at.
func (r Rule) ContainsInstant(at time.Time) bool {
	if at.Before(r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && at.After(*r.ValidUntil) {
		return false
	}
	return true
}
