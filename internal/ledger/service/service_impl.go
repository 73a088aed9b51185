package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/loyara/internal/clock"
	"github.com/smallbiznis/loyara/internal/config"
	ledgerdomain "github.com/smallbiznis/loyara/internal/ledger/domain"
	merchantdomain "github.com/smallbiznis/loyara/internal/merchant/domain"
	obslogger "github.com/smallbiznis/loyara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/loyara/internal/observability/metrics"
	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
	walletdomain "github.com/smallbiznis/loyara/internal/wallet/domain"
	pkgdb "github.com/smallbiznis/loyara/pkg/db"
	"github.com/smallbiznis/loyara/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Engine      *config.EngineConfigHolder
	Repo        ledgerdomain.Repository
	WalletRepo  walletdomain.Repository
	MerchantSvc merchantdomain.Service
	RuleSvc     ruledomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	engine      *config.EngineConfigHolder
	repo        ledgerdomain.Repository
	walletRepo  walletdomain.Repository
	merchantSvc merchantdomain.Service
	ruleSvc     ruledomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		engine:      p.Engine,
		repo:        p.Repo,
		walletRepo:  p.WalletRepo,
		merchantSvc: p.MerchantSvc,
		ruleSvc:     p.RuleSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

// envelope is the engine-written part of a transaction's metadata. Caller
// attributes sit under their own key so they can never shadow the fields the
// reversal path depends on.
type envelope struct {
	BatchID    string                        `json:"batch_id,omitempty"`
	Deductions []ledgerdomain.BatchDeduction `json:"deductions,omitempty"`
	Attributes map[string]any                `json:"attributes,omitempty"`
}

func (s *Service) Earn(ctx context.Context, req ledgerdomain.EarnRequest) (*ledgerdomain.TransactionResponse, error) {
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidUser
	}
	merchantID, err := snowflake.ParseString(req.MerchantID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidMerchant
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	if err := s.requireActiveMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	rule, err := s.ruleSvc.Resolve(ctx, merchantID, ruledomain.RuleKindEarn, now)
	if err != nil {
		return nil, err
	}

	result := ruledomain.CalculateEarn(rule, req.Amount, now)
	if result.Points == 0 {
		return nil, ledgerdomain.ErrBelowMinimum
	}

	var resp *ledgerdomain.TransactionResponse
	err = s.withRetry(ctx, "earn", func() error {
		resp = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			wallet, err := s.walletRepo.LockWalletByUserID(ctx, tx, userID)
			if err != nil {
				return err
			}
			if wallet == nil {
				return ledgerdomain.ErrWalletNotFound
			}

			txnID := s.genID.Generate()
			batchID := s.genID.Generate()
			balanceBefore := wallet.Balance

			metadata, err := marshalEnvelope(envelope{
				BatchID:    batchID.String(),
				Attributes: req.Metadata,
			})
			if err != nil {
				return err
			}

			ruleID := rule.ID
			amount := req.Amount
			txn := &ledgerdomain.Transaction{
				ID:            txnID,
				WalletID:      wallet.ID,
				MerchantID:    &merchantID,
				RuleID:        &ruleID,
				Type:          ledgerdomain.TransactionTypeEarn,
				Status:        ledgerdomain.TransactionStatusCompleted,
				Points:        result.Points,
				Amount:        &amount,
				BalanceBefore: balanceBefore,
				BalanceAfter:  balanceBefore + result.Points,
				Reference:     newReference(),
				Description:   req.Description,
				Metadata:      metadata,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.Insert(ctx, tx, txn); err != nil {
				return err
			}

			batch := &walletdomain.PointBatch{
				ID:            batchID,
				WalletID:      wallet.ID,
				Points:        result.Points,
				EarnedAt:      now,
				ExpiresAt:     result.ExpiresAt,
				TransactionID: txnID,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.walletRepo.InsertBatch(ctx, tx, batch); err != nil {
				return err
			}

			wallet.Balance += result.Points
			wallet.TotalEarned += result.Points
			wallet.LastActivityAt = &now
			if err := s.walletRepo.UpdateWalletTotals(ctx, tx, wallet); err != nil {
				return err
			}

			resp = toResponse(txn)
			resp.ExpiresAt = result.ExpiresAt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordTransaction(ctx, string(ledgerdomain.TransactionTypeEarn))
	s.obsMetrics.RecordEarnedPoints(ctx, merchantID.String(), result.Points)
	obslogger.WithContext(ctx, s.log).Info("points earned",
		zap.String("user_id", userID.String()),
		zap.String("merchant_id", merchantID.String()),
		zap.Int64("amount", req.Amount),
		zap.Int64("points", result.Points),
	)
	return resp, nil
}

func (s *Service) Burn(ctx context.Context, req ledgerdomain.BurnRequest) (*ledgerdomain.TransactionResponse, error) {
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidUser
	}
	merchantID, err := snowflake.ParseString(req.MerchantID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidMerchant
	}
	if req.Points <= 0 {
		return nil, ledgerdomain.ErrInvalidPoints
	}
	if maxBurn := s.engine.Current().MaxPointsPerBurn; req.Points > maxBurn {
		return nil, ledgerdomain.ErrBurnLimitExceeded
	}

	if err := s.requireActiveMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	var resp *ledgerdomain.TransactionResponse
	err = s.withRetry(ctx, "burn", func() error {
		resp = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			wallet, err := s.walletRepo.LockWalletByUserID(ctx, tx, userID)
			if err != nil {
				return err
			}
			if wallet == nil {
				return ledgerdomain.ErrWalletNotFound
			}
			if wallet.Balance < req.Points {
				return ledgerdomain.ErrInsufficientBalance
			}

			batches, err := s.walletRepo.LockActiveBatches(ctx, tx, wallet.ID)
			if err != nil {
				return err
			}

			deductions, err := ledgerdomain.AllocateBurn(batches, req.Points)
			if err != nil {
				return err
			}

			now := s.clock.Now().UTC()
			for _, d := range deductions {
				if err := s.walletRepo.DeductBatch(ctx, tx, d.BatchID, d.Points, now); err != nil {
					return err
				}
			}

			metadata, err := marshalEnvelope(envelope{
				Deductions: deductions,
				Attributes: req.Metadata,
			})
			if err != nil {
				return err
			}

			balanceBefore := wallet.Balance
			txn := &ledgerdomain.Transaction{
				ID:            s.genID.Generate(),
				WalletID:      wallet.ID,
				MerchantID:    &merchantID,
				Type:          ledgerdomain.TransactionTypeBurn,
				Status:        ledgerdomain.TransactionStatusCompleted,
				Points:        req.Points,
				BalanceBefore: balanceBefore,
				BalanceAfter:  balanceBefore - req.Points,
				Reference:     newReference(),
				Description:   req.Description,
				Metadata:      metadata,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.Insert(ctx, tx, txn); err != nil {
				return err
			}

			wallet.Balance -= req.Points
			wallet.TotalBurned += req.Points
			wallet.LastActivityAt = &now
			if err := s.walletRepo.UpdateWalletTotals(ctx, tx, wallet); err != nil {
				return err
			}

			resp = toResponse(txn)
			resp.Deductions = deductions
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordTransaction(ctx, string(ledgerdomain.TransactionTypeBurn))
	s.obsMetrics.RecordBurnedPoints(ctx, merchantID.String(), req.Points)
	obslogger.WithContext(ctx, s.log).Info("points burned",
		zap.String("user_id", userID.String()),
		zap.String("merchant_id", merchantID.String()),
		zap.Int64("points", req.Points),
		zap.Int("batches", len(resp.Deductions)),
	)
	return resp, nil
}

func (s *Service) RetireExpiredBatch(ctx context.Context, batchID snowflake.ID) (*ledgerdomain.TransactionResponse, error) {
	if batchID == 0 {
		return nil, ledgerdomain.ErrBatchNotFound
	}

	var resp *ledgerdomain.TransactionResponse
	err := s.withRetry(ctx, "retire_batch", func() error {
		resp = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Peek at the batch unlocked to learn its wallet, then lock
			// wallet before batch. Burns take locks in the same order.
			peek, err := s.walletRepo.FindBatchByID(ctx, tx, batchID)
			if err != nil {
				return err
			}
			if peek == nil {
				return ledgerdomain.ErrBatchNotFound
			}

			wallet, err := s.walletRepo.LockWalletByID(ctx, tx, peek.WalletID)
			if err != nil {
				return err
			}
			if wallet == nil {
				return ledgerdomain.ErrWalletNotFound
			}

			batch, err := s.walletRepo.LockBatchByID(ctx, tx, batchID)
			if err != nil {
				return err
			}
			if batch == nil {
				return ledgerdomain.ErrBatchNotFound
			}

			now := s.clock.Now().UTC()
			if batch.IsExpired || batch.Points <= 0 {
				return ledgerdomain.ErrBatchNotExpirable
			}
			if batch.ExpiresAt == nil || now.Before(*batch.ExpiresAt) {
				return ledgerdomain.ErrBatchNotExpirable
			}

			points := batch.Points
			if err := s.walletRepo.RetireBatch(ctx, tx, batch.ID, now); err != nil {
				return err
			}

			metadata, err := marshalEnvelope(envelope{BatchID: batch.ID.String()})
			if err != nil {
				return err
			}

			balanceBefore := wallet.Balance
			txn := &ledgerdomain.Transaction{
				ID:            s.genID.Generate(),
				WalletID:      wallet.ID,
				Type:          ledgerdomain.TransactionTypeExpired,
				Status:        ledgerdomain.TransactionStatusCompleted,
				Points:        points,
				BalanceBefore: balanceBefore,
				BalanceAfter:  balanceBefore - points,
				Reference:     newReference(),
				Description:   "batch expired",
				Metadata:      metadata,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.Insert(ctx, tx, txn); err != nil {
				return err
			}

			wallet.Balance -= points
			wallet.TotalExpired += points
			if err := s.walletRepo.UpdateWalletTotals(ctx, tx, wallet); err != nil {
				return err
			}

			resp = toResponse(txn)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordTransaction(ctx, string(ledgerdomain.TransactionTypeExpired))
	s.obsMetrics.RecordExpiredPoints(ctx, resp.Points)
	obslogger.WithContext(ctx, s.log).Info("batch retired",
		zap.String("batch_id", batchID.String()),
		zap.Int64("points", resp.Points),
	)
	return resp, nil
}

func (s *Service) Reverse(ctx context.Context, transactionID snowflake.ID) (*ledgerdomain.TransactionResponse, error) {
	if transactionID == 0 {
		return nil, ledgerdomain.ErrInvalidTransaction
	}

	var resp *ledgerdomain.TransactionResponse
	err := s.withRetry(ctx, "reverse", func() error {
		resp = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			original, err := s.repo.LockByID(ctx, tx, transactionID)
			if err != nil {
				return err
			}
			if original == nil {
				return ledgerdomain.ErrTransactionNotFound
			}
			if original.Status != ledgerdomain.TransactionStatusCompleted {
				return ledgerdomain.ErrNotReversible
			}

			wallet, err := s.walletRepo.LockWalletByID(ctx, tx, original.WalletID)
			if err != nil {
				return err
			}
			if wallet == nil {
				return ledgerdomain.ErrWalletNotFound
			}

			var env envelope
			if len(original.Metadata) > 0 {
				if err := json.Unmarshal(original.Metadata, &env); err != nil {
					return fmt.Errorf("decode transaction metadata: %w", err)
				}
			}

			now := s.clock.Now().UTC()
			var delta int64
			switch original.Type {
			case ledgerdomain.TransactionTypeEarn:
				delta, err = s.reverseEarn(ctx, tx, original, env, now)
			case ledgerdomain.TransactionTypeBurn:
				delta, err = s.reverseBurn(ctx, tx, env, now)
			default:
				return ledgerdomain.ErrNotReversible
			}
			if err != nil {
				return err
			}

			reversed, err := s.repo.MarkReversed(ctx, tx, original.ID, now)
			if err != nil {
				return err
			}
			if !reversed {
				return ledgerdomain.ErrNotReversible
			}

			originalID := original.ID
			balanceBefore := wallet.Balance
			adjustment := &ledgerdomain.Transaction{
				ID:            s.genID.Generate(),
				WalletID:      wallet.ID,
				MerchantID:    original.MerchantID,
				Type:          ledgerdomain.TransactionTypeAdjustment,
				Status:        ledgerdomain.TransactionStatusCompleted,
				Points:        delta,
				BalanceBefore: balanceBefore,
				BalanceAfter:  balanceBefore + delta,
				Reference:     newReference(),
				Description:   fmt.Sprintf("reversal of %s", original.Reference),
				ReversalOfID:  &originalID,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.Insert(ctx, tx, adjustment); err != nil {
				return err
			}

			wallet.Balance += delta
			if original.Type == ledgerdomain.TransactionTypeEarn {
				wallet.TotalEarned -= original.Points
			} else {
				wallet.TotalBurned -= original.Points
			}
			wallet.LastActivityAt = &now
			if err := s.walletRepo.UpdateWalletTotals(ctx, tx, wallet); err != nil {
				return err
			}

			resp = toResponse(adjustment)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordTransaction(ctx, string(ledgerdomain.TransactionTypeAdjustment))
	obslogger.WithContext(ctx, s.log).Info("transaction reversed",
		zap.String("transaction_id", transactionID.String()),
		zap.Int64("delta", resp.Points),
	)
	return resp, nil
}

// reverseEarn undoes an earn by draining its batch. The batch must still
// hold the full earned amount; once a burn or expiry touched it the earn is
// no longer reversible.
func (s *Service) reverseEarn(ctx context.Context, tx *gorm.DB, original *ledgerdomain.Transaction, env envelope, now time.Time) (int64, error) {
	batchID, err := snowflake.ParseString(env.BatchID)
	if err != nil {
		return 0, ledgerdomain.ErrNotReversible
	}

	batch, err := s.walletRepo.LockBatchByID(ctx, tx, batchID)
	if err != nil {
		return 0, err
	}
	if batch == nil || batch.IsExpired || batch.Points != original.Points {
		return 0, ledgerdomain.ErrNotReversible
	}

	if err := s.walletRepo.DeductBatch(ctx, tx, batch.ID, batch.Points, now); err != nil {
		return 0, err
	}
	return -original.Points, nil
}

// reverseBurn restores the recorded deductions. If any source batch expired
// since the burn, restoring would resurrect expired points, so reject.
func (s *Service) reverseBurn(ctx context.Context, tx *gorm.DB, env envelope, now time.Time) (int64, error) {
	if len(env.Deductions) == 0 {
		return 0, ledgerdomain.ErrNotReversible
	}

	var restored int64
	for _, d := range env.Deductions {
		batch, err := s.walletRepo.LockBatchByID(ctx, tx, d.BatchID)
		if err != nil {
			return 0, err
		}
		if batch == nil || batch.IsExpired {
			return 0, ledgerdomain.ErrNotReversible
		}
		if err := s.walletRepo.RestoreBatch(ctx, tx, d.BatchID, d.Points, now); err != nil {
			return 0, err
		}
		restored += d.Points
	}
	return restored, nil
}

func (s *Service) GetTransactions(ctx context.Context, req ledgerdomain.ListRequest) (*ledgerdomain.ListResponse, error) {
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidUser
	}

	wallet, err := s.walletRepo.FindWalletByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ledgerdomain.ErrWalletNotFound
	}

	filter := ledgerdomain.ListFilter{WalletID: wallet.ID}
	if req.Type != "" {
		filter.Type = ledgerdomain.TransactionType(req.Type)
	}
	if req.MerchantID != "" {
		merchantID, err := snowflake.ParseString(req.MerchantID)
		if err != nil {
			return nil, ledgerdomain.ErrInvalidMerchant
		}
		filter.MerchantID = merchantID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	filter.Limit = pageSize + 1

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, ledgerdomain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, ledgerdomain.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	var pageInfo pagination.PageInfo
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		pageInfo.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: rows[len(rows)-1].ID.String(),
		})
		if err != nil {
			return nil, err
		}
		pageInfo.NextPageToken = token
	}

	out := make([]ledgerdomain.TransactionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *toResponse(&rows[i]))
	}
	return &ledgerdomain.ListResponse{Transactions: out, PageInfo: pageInfo}, nil
}

func (s *Service) GetTransaction(ctx context.Context, id snowflake.ID) (*ledgerdomain.TransactionResponse, error) {
	if id == 0 {
		return nil, ledgerdomain.ErrInvalidTransaction
	}
	txn, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ledgerdomain.ErrTransactionNotFound
	}
	return toResponse(txn), nil
}

func (s *Service) requireActiveMerchant(ctx context.Context, merchantID snowflake.ID) error {
	active, err := s.merchantSvc.IsActive(ctx, merchantID)
	if err != nil {
		if errors.Is(err, merchantdomain.ErrNotFound) {
			return ledgerdomain.ErrInvalidMerchant
		}
		return err
	}
	if !active {
		return ledgerdomain.ErrMerchantInactive
	}
	return nil
}

// withRetry reruns fn when the database reports a serialization conflict or
// deadlock, up to the configured attempt budget.
func (s *Service) withRetry(ctx context.Context, operation string, fn func() error) error {
	attempts := s.engine.Current().ConflictRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !pkgdb.IsRetryableErr(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		s.obsMetrics.RecordConflictRetry(ctx, operation)
		s.log.Warn("retrying after conflict",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", ledgerdomain.ErrConflict, err)
}

func marshalEnvelope(env envelope) (datatypes.JSON, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func newReference() string {
	return "txn_" + ulid.Make().String()
}

func toResponse(txn *ledgerdomain.Transaction) *ledgerdomain.TransactionResponse {
	resp := &ledgerdomain.TransactionResponse{
		ID:            txn.ID.String(),
		WalletID:      txn.WalletID.String(),
		Type:          txn.Type,
		Status:        txn.Status,
		Points:        txn.Points,
		Amount:        txn.Amount,
		BalanceBefore: txn.BalanceBefore,
		BalanceAfter:  txn.BalanceAfter,
		Reference:     txn.Reference,
		Description:   txn.Description,
		CreatedAt:     txn.CreatedAt.UTC(),
	}
	if txn.MerchantID != nil {
		resp.MerchantID = txn.MerchantID.String()
	}
	if txn.RuleID != nil {
		resp.RuleID = txn.RuleID.String()
	}
	return resp
}
