package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *Rule) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rule, error)
	List(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) ([]Rule, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	// FindEffectiveAt returns the single rule whose validity window contains
	// at, preferring the latest valid_from when windows overlap. Returns
	// (nil, nil) when no rule matches.
	FindEffectiveAt(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, kind RuleKind, at time.Time) (*Rule, error)
}
