package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	merchantdomain "github.com/smallbiznis/loyara/internal/merchant/domain"
	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
	userdomain "github.com/smallbiznis/loyara/internal/user/domain"
	walletdomain "github.com/smallbiznis/loyara/internal/wallet/domain"
)

const (
	demoMerchantCode = "demo-coffee"
	demoMerchantName = "Demo Coffee"
	demoUserEmail    = "demo@loyara.dev"
	demoUserName     = "Demo Member"
)

// EnsureDemoData seeds a demo merchant, an earn rule, and a demo member with
// a wallet, for local development. Idempotent: re-running touches nothing.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		merchant, err := ensureDemoMerchant(ctx, tx, node)
		if err != nil {
			return err
		}
		if err := ensureDemoEarnRule(ctx, tx, node, merchant.ID); err != nil {
			return err
		}
		return ensureDemoUser(ctx, tx, node)
	})
}

func ensureDemoMerchant(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*merchantdomain.Merchant, error) {
	var merchant merchantdomain.Merchant
	err := tx.WithContext(ctx).
		Where("code = ?", demoMerchantCode).
		First(&merchant).Error
	if err == nil {
		return &merchant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	merchant = merchantdomain.Merchant{
		ID:        node.Generate(),
		Code:      demoMerchantCode,
		Name:      demoMerchantName,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&merchant).Error; err != nil {
		return nil, err
	}
	return &merchant, nil
}

func ensureDemoEarnRule(ctx context.Context, tx *gorm.DB, node *snowflake.Node, merchantID snowflake.ID) error {
	var count int64
	err := tx.WithContext(ctx).
		Model(&ruledomain.Rule{}).
		Where("merchant_id = ? AND kind = ?", merchantID, ruledomain.RuleKindEarn).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	minAmount := int64(100)
	expiryDays := 365
	rule := ruledomain.Rule{
		ID:            node.Generate(),
		MerchantID:    merchantID,
		Kind:          ruledomain.RuleKindEarn,
		PointsPerUnit: 1,
		UnitAmount:    100, // 1 point per whole currency unit
		MinAmount:     &minAmount,
		ExpiryDays:    &expiryDays,
		ValidFrom:     now,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tx.WithContext(ctx).Create(&rule).Error
}

func ensureDemoUser(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var user userdomain.User
	err := tx.WithContext(ctx).
		Where("email = ?", demoUserEmail).
		First(&user).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	user = userdomain.User{
		ID:        node.Generate(),
		Email:     demoUserEmail,
		Name:      demoUserName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return err
	}

	wallet := walletdomain.Wallet{
		ID:        node.Generate(),
		UserID:    user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return tx.WithContext(ctx).Create(&wallet).Error
}
