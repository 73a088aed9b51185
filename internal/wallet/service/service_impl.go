package service

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	obslogger "github.com/smallbiznis/loyara/internal/observability/logger"
	"github.com/smallbiznis/loyara/internal/wallet/domain"
)

type Params struct {
	fx.In
	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

// New constructs the wallet read service.
func New(p Params) domain.Service {
	return &service{
		db:   p.DB,
		log:  p.Log.Named("wallet.service"),
		repo: p.Repo,
	}
}

func (s *service) GetByUserID(ctx context.Context, userID string) (*domain.Response, error) {
	uid, err := domain.ParseID(userID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}

	wallet, err := s.repo.FindWalletByUserID(ctx, s.db, uid)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("failed to load wallet", zap.Error(err))
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrNotFound
	}

	return toResponse(wallet), nil
}

func (s *service) GetActiveBatches(ctx context.Context, userID string) ([]domain.BatchResponse, error) {
	uid, err := domain.ParseID(userID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}

	wallet, err := s.repo.FindWalletByUserID(ctx, s.db, uid)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrNotFound
	}

	batches, err := s.repo.ListActiveBatches(ctx, s.db, wallet.ID)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("failed to list batches", zap.Error(err))
		return nil, err
	}

	out := make([]domain.BatchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, domain.BatchResponse{
			ID:            b.ID.String(),
			WalletID:      b.WalletID.String(),
			Points:        b.Points,
			EarnedAt:      b.EarnedAt.UTC(),
			ExpiresAt:     normalizeTime(b.ExpiresAt),
			TransactionID: b.TransactionID.String(),
		})
	}
	return out, nil
}

func toResponse(w *domain.Wallet) *domain.Response {
	return &domain.Response{
		ID:             w.ID.String(),
		UserID:         w.UserID.String(),
		Balance:        w.Balance,
		TotalEarned:    w.TotalEarned,
		TotalBurned:    w.TotalBurned,
		TotalExpired:   w.TotalExpired,
		LastActivityAt: normalizeTime(w.LastActivityAt),
		CreatedAt:      w.CreatedAt.UTC(),
	}
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
