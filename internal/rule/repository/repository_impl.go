package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ruledomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *ruledomain.Rule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO point_rules (
			id, merchant_id, kind, points_per_unit, unit_amount, min_amount,
			max_points, expiry_days, valid_from, valid_until, active, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.MerchantID,
		rule.Kind,
		rule.PointsPerUnit,
		rule.UnitAmount,
		rule.MinAmount,
		rule.MaxPoints,
		rule.ExpiryDays,
		rule.ValidFrom,
		rule.ValidUntil,
		rule.Active,
		rule.CreatedAt,
		rule.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ruledomain.Rule, error) {
	var rule ruledomain.Rule
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, kind, points_per_unit, unit_amount, min_amount,
		        max_points, expiry_days, valid_from, valid_until, active, created_at, updated_at
		 FROM point_rules WHERE id = ?`,
		id,
	).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) ([]ruledomain.Rule, error) {
	var rules []ruledomain.Rule
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, kind, points_per_unit, unit_amount, min_amount,
		        max_points, expiry_days, valid_from, valid_until, active, created_at, updated_at
		 FROM point_rules WHERE merchant_id = ? ORDER BY valid_from DESC`,
		merchantID,
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE point_rules SET active = ?, updated_at = ? WHERE id = ?`,
		false,
		at,
		id,
	).Error
}

func (r *repo) FindEffectiveAt(
	ctx context.Context,
	db *gorm.DB,
	merchantID snowflake.ID,
	kind ruledomain.RuleKind,
	at time.Time,
) (*ruledomain.Rule, error) {
	var rule ruledomain.Rule
	// Overlapping windows are legal; the latest valid_from wins.
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, kind, points_per_unit, unit_amount, min_amount,
		        max_points, expiry_days, valid_from, valid_until, active, created_at, updated_at
		 FROM point_rules
		 WHERE merchant_id = ?
		   AND kind = ?
		   AND active = ?
		   AND valid_from <= ?
		   AND (valid_until IS NULL OR valid_until >= ?)
		 ORDER BY valid_from DESC
		 LIMIT 1`,
		merchantID,
		kind,
		true,
		at,
		at,
	).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}
