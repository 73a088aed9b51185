package expiry

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
	"github.com/smallbiznis/loyara/internal/clock"
	"github.com/smallbiznis/loyara/internal/config"
	ledgerdomain "github.com/smallbiznis/loyara/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/loyara/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/loyara/internal/ledger/service"
	merchantdomain "github.com/smallbiznis/loyara/internal/merchant/domain"
	merchantservice "github.com/smallbiznis/loyara/internal/merchant/service"
	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
	rulerepository "github.com/smallbiznis/loyara/internal/rule/repository"
	ruleservice "github.com/smallbiznis/loyara/internal/rule/service"
	userdomain "github.com/smallbiznis/loyara/internal/user/domain"
	walletdomain "github.com/smallbiznis/loyara/internal/wallet/domain"
	walletrepository "github.com/smallbiznis/loyara/internal/wallet/repository"
	"github.com/smallbiznis/loyara/pkg/repository"
)

type sweepEnv struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	worker   *Worker
	walletID snowflake.ID
	userID   snowflake.ID
}

func setupSweepTest(t *testing.T) *sweepEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&merchantdomain.Merchant{},
		&ruledomain.Rule{},
		&userdomain.User{},
		&walletdomain.Wallet{},
		&ledgerdomain.Transaction{},
		&walletdomain.PointBatch{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logger := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	engine, err := config.NewEngineConfigHolder()
	require.NoError(t, err)

	walletRepo := walletrepository.Provide()
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:         db,
		Log:        logger,
		GenID:      node,
		Clock:      fakeClock,
		Engine:     engine,
		Repo:       ledgerrepository.Provide(),
		WalletRepo: walletRepo,
		MerchantSvc: merchantservice.New(merchantservice.Params{
			DB:    db,
			Log:   logger,
			GenID: node,
			Repo:  repository.ProvideStore[merchantdomain.Merchant](db),
		}),
		RuleSvc: ruleservice.New(ruleservice.Params{
			DB:    db,
			Log:   logger,
			GenID: node,
			Repo:  rulerepository.Provide(),
			Cache: cache.NewRuleResolverCache(),
		}),
	})

	worker := NewWorker(Params{
		DB:         db,
		Log:        logger,
		Clock:      fakeClock,
		Config:     config.Config{},
		Engine:     engine,
		Ledger:     ledgerSvc,
		WalletRepo: walletRepo,
	})

	env := &sweepEnv{db: db, node: node, clock: fakeClock, worker: worker}

	now := fakeClock.Now()
	env.userID = node.Generate()
	require.NoError(t, db.Create(&userdomain.User{
		ID: env.userID, Email: "sweep@example.com", Name: "Sweep",
		CreatedAt: now, UpdatedAt: now,
	}).Error)
	env.walletID = node.Generate()
	require.NoError(t, db.Create(&walletdomain.Wallet{
		ID: env.walletID, UserID: env.userID,
		CreatedAt: now, UpdatedAt: now,
	}).Error)
	return env
}

func (e *sweepEnv) seedBatch(t *testing.T, points int64, expiresAt *time.Time) snowflake.ID {
	t.Helper()
	now := e.clock.Now()

	var wallet walletdomain.Wallet
	require.NoError(t, e.db.First(&wallet, "id = ?", e.walletID).Error)

	txnID := e.node.Generate()
	require.NoError(t, e.db.Create(&ledgerdomain.Transaction{
		ID:            txnID,
		WalletID:      e.walletID,
		Type:          ledgerdomain.TransactionTypeEarn,
		Status:        ledgerdomain.TransactionStatusCompleted,
		Points:        points,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance + points,
		Reference:     fmt.Sprintf("txn_seed_%d", txnID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}).Error)

	batchID := e.node.Generate()
	require.NoError(t, e.db.Create(&walletdomain.PointBatch{
		ID:            batchID,
		WalletID:      e.walletID,
		Points:        points,
		EarnedAt:      now,
		ExpiresAt:     expiresAt,
		TransactionID: txnID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}).Error)

	require.NoError(t, e.db.Model(&walletdomain.Wallet{}).
		Where("id = ?", e.walletID).
		Updates(map[string]any{
			"balance":      wallet.Balance + points,
			"total_earned": wallet.TotalEarned + points,
		}).Error)
	return batchID
}

func TestRunOnce_RetiresOnlyDueBatches(t *testing.T) {
	env := setupSweepTest(t)
	now := env.clock.Now()

	overdue := now.Add(-time.Hour)
	future := now.AddDate(0, 0, 30)
	dueID := env.seedBatch(t, 100, &overdue)
	env.seedBatch(t, 50, &future)
	env.seedBatch(t, 25, nil)

	require.NoError(t, env.worker.RunOnce(context.Background()))

	var batch walletdomain.PointBatch
	require.NoError(t, env.db.First(&batch, "id = ?", dueID).Error)
	assert.True(t, batch.IsExpired)
	assert.Equal(t, int64(0), batch.Points)

	var wallet walletdomain.Wallet
	require.NoError(t, env.db.First(&wallet, "id = ?", env.walletID).Error)
	assert.Equal(t, int64(75), wallet.Balance)
	assert.Equal(t, int64(100), wallet.TotalExpired)
	assert.Equal(t, wallet.Balance, wallet.TotalEarned-wallet.TotalBurned-wallet.TotalExpired)

	var expiredTxns int64
	require.NoError(t, env.db.Model(&ledgerdomain.Transaction{}).
		Where("type = ?", ledgerdomain.TransactionTypeExpired).
		Count(&expiredTxns).Error)
	assert.Equal(t, int64(1), expiredTxns)
}

func TestRunOnce_IdempotentAcrossRuns(t *testing.T) {
	env := setupSweepTest(t)
	now := env.clock.Now()

	overdue := now.Add(-time.Minute)
	env.seedBatch(t, 40, &overdue)

	require.NoError(t, env.worker.RunOnce(context.Background()))
	require.NoError(t, env.worker.RunOnce(context.Background()))

	var wallet walletdomain.Wallet
	require.NoError(t, env.db.First(&wallet, "id = ?", env.walletID).Error)
	assert.Equal(t, int64(0), wallet.Balance)
	assert.Equal(t, int64(40), wallet.TotalExpired)

	var expiredTxns int64
	require.NoError(t, env.db.Model(&ledgerdomain.Transaction{}).
		Where("type = ?", ledgerdomain.TransactionTypeExpired).
		Count(&expiredTxns).Error)
	assert.Equal(t, int64(1), expiredTxns)
}

func TestRunOnce_EmptyTableIsNoOp(t *testing.T) {
	env := setupSweepTest(t)
	require.NoError(t, env.worker.RunOnce(context.Background()))
}
