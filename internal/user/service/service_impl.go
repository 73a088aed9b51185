package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	obslogger "github.com/smallbiznis/loyara/internal/observability/logger"
	userdomain "github.com/smallbiznis/loyara/internal/user/domain"
	walletdomain "github.com/smallbiznis/loyara/internal/wallet/domain"
	pkgdb "github.com/smallbiznis/loyara/pkg/db"
	"github.com/smallbiznis/loyara/pkg/repository"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       repository.Repository[userdomain.User]
	WalletRepo walletdomain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       repository.Repository[userdomain.User]
	walletRepo walletdomain.Repository
}

func New(p Params) userdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("user.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		walletRepo: p.WalletRepo,
	}
}

func (s *Service) Register(ctx context.Context, req userdomain.RegisterRequest) (*userdomain.Response, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, userdomain.ErrInvalidEmail
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, userdomain.ErrInvalidName
	}

	now := time.Now().UTC()
	user := &userdomain.User{
		ID:        s.genID.Generate(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	wallet := &walletdomain.Wallet{
		ID:        s.genID.Generate(),
		UserID:    user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Create(ctx, user); err != nil {
			return err
		}
		return s.walletRepo.InsertWallet(ctx, tx, wallet)
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, userdomain.ErrEmailTaken
		}
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("wallet_id", wallet.ID.String()),
	)

	resp := toResponse(user)
	resp.WalletID = wallet.ID.String()
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*userdomain.Response, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, userdomain.ErrInvalidID
	}

	user, err := s.repo.FindOne(ctx, &userdomain.User{ID: userID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}

	resp := toResponse(user)
	wallet, err := s.walletRepo.FindWalletByUserID(ctx, s.db, user.ID)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		resp.WalletID = wallet.ID.String()
	}
	return resp, nil
}

func toResponse(u *userdomain.User) *userdomain.Response {
	return &userdomain.Response{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}
