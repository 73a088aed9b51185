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

	userdomain "github.com/smallbiznis/loyara/internal/user/domain"
	walletdomain "github.com/smallbiznis/loyara/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/loyara/internal/wallet/repository"
	"github.com/smallbiznis/loyara/pkg/repository"
)

func setupUserTest(t *testing.T) (userdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&userdomain.User{}, &walletdomain.Wallet{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.ProvideStore[userdomain.User](db),
		WalletRepo: walletrepo.Provide(),
	})
	return svc, db
}

func TestRegister_CreatesUserAndWallet(t *testing.T) {
	svc, db := setupUserTest(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, userdomain.RegisterRequest{Email: "Alice@Example.com", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", resp.Email)
	require.NotEmpty(t, resp.WalletID)

	userID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	wallet, err := walletrepo.Provide().FindWalletByUserID(ctx, db, userID)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, resp.WalletID, wallet.ID.String())
	assert.Zero(t, wallet.Balance)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := setupUserTest(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, userdomain.RegisterRequest{Email: "bob@example.com", Name: "Bob"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, userdomain.RegisterRequest{Email: "BOB@example.com", Name: "Bobby"})
	assert.ErrorIs(t, err, userdomain.ErrEmailTaken)
}

func TestRegister_RejectsBadInput(t *testing.T) {
	svc, _ := setupUserTest(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, userdomain.RegisterRequest{Email: "not-an-email", Name: "X"})
	assert.ErrorIs(t, err, userdomain.ErrInvalidEmail)

	_, err = svc.Register(ctx, userdomain.RegisterRequest{Email: "ok@example.com", Name: "  "})
	assert.ErrorIs(t, err, userdomain.ErrInvalidName)
}

func TestGetByID_AttachesWallet(t *testing.T) {
	svc, _ := setupUserTest(t)
	ctx := context.Background()

	created, err := svc.Register(ctx, userdomain.RegisterRequest{Email: "carol@example.com", Name: "Carol"})
	require.NoError(t, err)

	found, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.WalletID, found.WalletID)

	_, err = svc.GetByID(ctx, "999999999999999999")
	assert.ErrorIs(t, err, userdomain.ErrNotFound)
}
