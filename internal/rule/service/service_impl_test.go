package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/loyara/internal/cache"
	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
	rulerepository "github.com/smallbiznis/loyara/internal/rule/repository"
)

func setupRuleTest(t *testing.T) (*gorm.DB, ruledomain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ruledomain.Rule{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  rulerepository.Provide(),
		Cache: cache.NewRuleResolverCache(),
	})
	return db, svc, node
}

func insertRule(t *testing.T, db *gorm.DB, node *snowflake.Node, merchantID snowflake.ID, kind ruledomain.RuleKind, validFrom time.Time, validUntil *time.Time, active bool) snowflake.ID {
	t.Helper()
	rule := &ruledomain.Rule{
		ID:            node.Generate(),
		MerchantID:    merchantID,
		Kind:          kind,
		PointsPerUnit: 1,
		UnitAmount:    100,
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
		Active:        active,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.Create(rule).Error)
	return rule.ID
}

func TestResolve_PicksLatestValidFromOnOverlap(t *testing.T) {
	db, svc, node := setupRuleTest(t)
	ctx := context.Background()
	merchantID := node.Generate()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	insertRule(t, db, node, merchantID, ruledomain.RuleKindEarn, at.AddDate(0, -2, 0), nil, true)
	newer := insertRule(t, db, node, merchantID, ruledomain.RuleKindEarn, at.AddDate(0, -1, 0), nil, true)

	rule, err := svc.Resolve(ctx, merchantID, ruledomain.RuleKindEarn, at)
	require.NoError(t, err)
	assert.Equal(t, newer, rule.ID)
}

func TestResolve_RespectsWindowAndActive(t *testing.T) {
	db, svc, node := setupRuleTest(t)
	ctx := context.Background()
	merchantID := node.Generate()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// Expired window.
	until := at.AddDate(0, 0, -1)
	insertRule(t, db, node, merchantID, ruledomain.RuleKindEarn, at.AddDate(0, -2, 0), &until, true)
	// Not yet valid.
	insertRule(t, db, node, merchantID, ruledomain.RuleKindEarn, at.AddDate(0, 1, 0), nil, true)
	// Inactive.
	insertRule(t, db, node, merchantID, ruledomain.RuleKindEarn, at.AddDate(0, -1, 0), nil, false)
	// Wrong kind.
	insertRule(t, db, node, merchantID, ruledomain.RuleKindBurn, at.AddDate(0, -1, 0), nil, true)

	_, err := svc.Resolve(ctx, merchantID, ruledomain.RuleKindEarn, at)
	assert.ErrorIs(t, err, ruledomain.ErrNoActiveRule)
}

func TestResolve_NoRuleIsBusinessOutcome(t *testing.T) {
	_, svc, node := setupRuleTest(t)

	_, err := svc.Resolve(context.Background(), node.Generate(), ruledomain.RuleKindEarn, time.Now().UTC())
	assert.ErrorIs(t, err, ruledomain.ErrNoActiveRule)
}

func TestResolve_CachedRuleRevalidatedAgainstInstant(t *testing.T) {
	db, svc, node := setupRuleTest(t)
	ctx := context.Background()
	merchantID := node.Generate()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	until := at.Add(time.Hour)
	insertRule(t, db, node, merchantID, ruledomain.RuleKindEarn, at.AddDate(0, -1, 0), &until, true)

	rule, err := svc.Resolve(ctx, merchantID, ruledomain.RuleKindEarn, at)
	require.NoError(t, err)
	require.NotNil(t, rule)

	// Same merchant, later instant: the cached rule's window no longer
	// covers it, so resolution must miss rather than serve a stale rule.
	_, err = svc.Resolve(ctx, merchantID, ruledomain.RuleKindEarn, until.Add(time.Minute))
	assert.ErrorIs(t, err, ruledomain.ErrNoActiveRule)
}

func TestCreate_InvalidatesCache(t *testing.T) {
	db, svc, node := setupRuleTest(t)
	ctx := context.Background()
	merchantID := node.Generate()
	at := time.Now().UTC()

	insertRule(t, db, node, merchantID, ruledomain.RuleKindEarn, at.AddDate(0, -1, 0), nil, true)

	first, err := svc.Resolve(ctx, merchantID, ruledomain.RuleKindEarn, at)
	require.NoError(t, err)

	created, err := svc.Create(ctx, ruledomain.CreateRequest{
		MerchantID:    merchantID.String(),
		Kind:          string(ruledomain.RuleKindEarn),
		PointsPerUnit: 2,
		UnitAmount:    100,
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, merchantID, ruledomain.RuleKindEarn, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, created.ID, resolved.ID.String())
	assert.NotEqual(t, first.ID.String(), resolved.ID.String())
}
