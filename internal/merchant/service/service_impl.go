package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	merchantdomain "github.com/smallbiznis/loyara/internal/merchant/domain"
	pkgdb "github.com/smallbiznis/loyara/pkg/db"
	"github.com/smallbiznis/loyara/pkg/db/option"
	"github.com/smallbiznis/loyara/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  repository.Repository[merchantdomain.Merchant]
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository[merchantdomain.Merchant]
}

func New(p Params) merchantdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("merchant.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req merchantdomain.CreateRequest) (*merchantdomain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, merchantdomain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	} else {
		code = slug.Make(code)
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	m := &merchantdomain.Merchant{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, m); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, merchantdomain.ErrCodeTaken
		}
		return nil, err
	}

	return toResponse(m), nil
}

func (s *Service) List(ctx context.Context) ([]merchantdomain.Response, error) {
	items, err := s.repo.Find(ctx, &merchantdomain.Merchant{}, option.WithOrder("created_at ASC"))
	if err != nil {
		return nil, err
	}

	resp := make([]merchantdomain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, *toResponse(item))
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*merchantdomain.Response, error) {
	merchantID, err := merchantdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, merchantdomain.ErrInvalidID
	}

	item, err := s.repo.FindOne(ctx, &merchantdomain.Merchant{ID: merchantID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, merchantdomain.ErrNotFound
	}

	return toResponse(item), nil
}

func (s *Service) Update(ctx context.Context, req merchantdomain.UpdateRequest) (*merchantdomain.Response, error) {
	merchantID, err := merchantdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, merchantdomain.ErrInvalidID
	}

	item, err := s.repo.FindOne(ctx, &merchantdomain.Merchant{ID: merchantID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, merchantdomain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, merchantdomain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	item.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, item.ID.String(), map[string]any{
		"name":       item.Name,
		"active":     item.Active,
		"updated_at": item.UpdatedAt,
	}); err != nil {
		return nil, err
	}

	return toResponse(item), nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	merchantID, err := merchantdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return merchantdomain.ErrInvalidID
	}

	item, err := s.repo.FindOne(ctx, &merchantdomain.Merchant{ID: merchantID})
	if err != nil {
		return err
	}
	if item == nil {
		return merchantdomain.ErrNotFound
	}

	return s.repo.Update(ctx, item.ID.String(), map[string]any{
		"active":     false,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Service) IsActive(ctx context.Context, id snowflake.ID) (bool, error) {
	if id == 0 {
		return false, merchantdomain.ErrInvalidID
	}

	item, err := s.repo.FindOne(ctx, &merchantdomain.Merchant{ID: id})
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, merchantdomain.ErrNotFound
	}
	return item.Active, nil
}

func toResponse(m *merchantdomain.Merchant) *merchantdomain.Response {
	return &merchantdomain.Response{
		ID:        m.ID.String(),
		Code:      m.Code,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
