package expiry

import (
	"context"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/loyara/internal/clock"
	"github.com/smallbiznis/loyara/internal/config"
	ledgerdomain "github.com/smallbiznis/loyara/internal/ledger/domain"
	"github.com/smallbiznis/loyara/internal/ratelimit"
	walletdomain "github.com/smallbiznis/loyara/internal/wallet/domain"
)

var leaderLockKey = ratelimit.LockKey("sweep", "leader")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Engine     *config.EngineConfigHolder
	Ledger     ledgerdomain.Service
	WalletRepo walletdomain.Repository
}

// Worker retires point batches past their expiry. It scans with SKIP LOCKED
// so several replicas can sweep the same table without double-claiming, and
// optionally takes a redis leader lock to keep all but one replica idle.
type Worker struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	engine     *config.EngineConfigHolder
	ledger     ledgerdomain.Service
	walletRepo walletdomain.Repository
	locker     *ratelimit.Locker
}

func NewWorker(p Params) *Worker {
	var locker *ratelimit.Locker
	if p.Config.Sweep.LockEnabled {
		addr := strings.TrimSpace(p.Config.Sweep.RedisAddr)
		if addr != "" {
			locker = ratelimit.NewLocker(redis.NewClient(&redis.Options{
				Addr:     addr,
				Password: strings.TrimSpace(p.Config.Sweep.RedisPassword),
				DB:       p.Config.Sweep.RedisDB,
			}))
		} else {
			p.Log.Warn("sweep lock enabled without redis addr, running unlocked")
		}
	}

	return &Worker{
		db:         p.DB,
		log:        p.Log.Named("expiry.worker"),
		clock:      p.Clock,
		engine:     p.Engine,
		ledger:     p.Ledger,
		walletRepo: p.WalletRepo,
		locker:     locker,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	for {
		if err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn("sweep run failed", zap.Error(err))
		}

		interval := time.Duration(w.engine.Current().SweepIntervalSeconds) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// RunOnce performs one sweep pass. Returns nil when another replica holds
// the leader lock.
func (w *Worker) RunOnce(parentCtx context.Context) error {
	engineCfg := w.engine.Current()
	ctx, cancel := context.WithTimeout(parentCtx, time.Duration(engineCfg.SweepRunTimeoutSecs)*time.Second)
	defer cancel()

	if w.locker != nil {
		ttl := time.Duration(engineCfg.SweepRunTimeoutSecs) * time.Second
		token, ok, err := w.locker.TryLock(ctx, leaderLockKey, ttl)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		defer func() {
			if err := w.locker.Release(context.WithoutCancel(ctx), leaderLockKey, token); err != nil {
				w.log.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	_, err := w.processBatch(ctx, engineCfg.SweepBatchSize)
	return err
}

func (w *Worker) processBatch(ctx context.Context, limit int) (int, error) {
	now := w.clock.Now().UTC()

	var due []walletdomain.PointBatch
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		due, err = w.walletRepo.LockDueBatches(ctx, tx, now, limit)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	retired := 0
	for _, batch := range due {
		_, err := w.ledger.RetireExpiredBatch(ctx, batch.ID)
		switch {
		case err == nil:
			retired++
		case errors.Is(err, ledgerdomain.ErrBatchNotExpirable), errors.Is(err, ledgerdomain.ErrBatchNotFound):
			// Another sweeper or an overlapping reversal got there first.
		default:
			w.log.Warn("failed to retire batch",
				zap.Error(err),
				zap.String("batch_id", batch.ID.String()),
			)
		}
	}

	if retired > 0 {
		w.log.Info("sweep pass complete",
			zap.Int("due", len(due)),
			zap.Int("retired", retired),
		)
	}
	return retired, nil
}
