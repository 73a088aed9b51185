package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	merchantdomain "github.com/smallbiznis/loyara/internal/merchant/domain"
	"github.com/smallbiznis/loyara/pkg/repository"
)

func setupMerchantTest(t *testing.T) merchantdomain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&merchantdomain.Merchant{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.ProvideStore[merchantdomain.Merchant](db),
	})
}

func TestCreateMerchant_SlugsCode(t *testing.T) {
	svc := setupMerchantTest(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, merchantdomain.CreateRequest{Name: "Blue Bottle Coffee"})
	require.NoError(t, err)
	assert.Equal(t, "blue-bottle-coffee", resp.Code)
	assert.True(t, resp.Active)
}

func TestCreateMerchant_DuplicateCode(t *testing.T) {
	svc := setupMerchantTest(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, merchantdomain.CreateRequest{Name: "Shop", Code: "shop"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, merchantdomain.CreateRequest{Name: "Other Shop", Code: "shop"})
	assert.ErrorIs(t, err, merchantdomain.ErrCodeTaken)
}

func TestCreateMerchant_ExplicitInactivePersists(t *testing.T) {
	svc := setupMerchantTest(t)
	ctx := context.Background()

	inactive := false
	resp, err := svc.Create(ctx, merchantdomain.CreateRequest{Name: "Paused Shop", Active: &inactive})
	require.NoError(t, err)
	assert.False(t, resp.Active)

	id, err := merchantdomain.ParseID(resp.ID)
	require.NoError(t, err)

	active, err := svc.IsActive(ctx, id)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestDeactivateMerchant_IsActive(t *testing.T) {
	svc := setupMerchantTest(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, merchantdomain.CreateRequest{Name: "Shop"})
	require.NoError(t, err)

	id, err := merchantdomain.ParseID(resp.ID)
	require.NoError(t, err)

	active, err := svc.IsActive(ctx, id)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, svc.Deactivate(ctx, resp.ID))

	active, err = svc.IsActive(ctx, id)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = svc.IsActive(ctx, id+1)
	assert.ErrorIs(t, err, merchantdomain.ErrNotFound)
}
