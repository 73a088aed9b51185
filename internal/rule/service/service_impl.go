package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyara/internal/cache"
	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  ruledomain.Repository
	Cache cache.RuleResolverCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  ruledomain.Repository
	cache cache.RuleResolverCache
}

func New(p Params) ruledomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("rule.service"),
		genID: p.GenID,
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) Create(ctx context.Context, req ruledomain.CreateRequest) (*ruledomain.Response, error) {
	merchantID, err := ruledomain.ParseID(strings.TrimSpace(req.MerchantID))
	if err != nil || merchantID == 0 {
		return nil, ruledomain.ErrInvalidMerchant
	}

	kind, err := ruledomain.ParseKind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if err != nil {
		return nil, err
	}

	if req.PointsPerUnit <= 0 {
		return nil, ruledomain.ErrInvalidPointsPerUnit
	}
	if req.UnitAmount <= 0 {
		return nil, ruledomain.ErrInvalidUnitAmount
	}
	if req.MinAmount != nil && *req.MinAmount < 0 {
		return nil, ruledomain.ErrInvalidMinAmount
	}
	if req.MaxPoints != nil && *req.MaxPoints <= 0 {
		return nil, ruledomain.ErrInvalidMaxPoints
	}
	if req.ExpiryDays != nil && *req.ExpiryDays <= 0 {
		return nil, ruledomain.ErrInvalidExpiryDays
	}

	now := time.Now().UTC()
	validFrom := now
	if req.ValidFrom != nil {
		validFrom = req.ValidFrom.UTC()
	}
	var validUntil *time.Time
	if req.ValidUntil != nil {
		until := req.ValidUntil.UTC()
		if !until.After(validFrom) {
			return nil, ruledomain.ErrInvalidWindow
		}
		validUntil = &until
	}

	rule := &ruledomain.Rule{
		ID:            s.genID.Generate(),
		MerchantID:    merchantID,
		Kind:          kind,
		PointsPerUnit: req.PointsPerUnit,
		UnitAmount:    req.UnitAmount,
		MinAmount:     req.MinAmount,
		MaxPoints:     req.MaxPoints,
		ExpiryDays:    req.ExpiryDays,
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, s.db, rule); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(merchantID.String(), kind)
	}

	return toResponse(rule), nil
}

func (s *Service) List(ctx context.Context, merchantID string) ([]ruledomain.Response, error) {
	id, err := ruledomain.ParseID(strings.TrimSpace(merchantID))
	if err != nil || id == 0 {
		return nil, ruledomain.ErrInvalidMerchant
	}

	rules, err := s.repo.List(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	resp := make([]ruledomain.Response, 0, len(rules))
	for i := range rules {
		resp = append(resp, *toResponse(&rules[i]))
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*ruledomain.Response, error) {
	ruleID, err := ruledomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, ruledomain.ErrInvalidID
	}

	rule, err := s.repo.FindByID(ctx, s.db, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ruledomain.ErrNotFound
	}
	return toResponse(rule), nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	ruleID, err := ruledomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return ruledomain.ErrInvalidID
	}

	rule, err := s.repo.FindByID(ctx, s.db, ruleID)
	if err != nil {
		return err
	}
	if rule == nil {
		return ruledomain.ErrNotFound
	}

	if err := s.repo.Deactivate(ctx, s.db, ruleID, time.Now().UTC()); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(rule.MerchantID.String(), rule.Kind)
	}
	return nil
}

func (s *Service) Resolve(ctx context.Context, merchantID snowflake.ID, kind ruledomain.RuleKind, at time.Time) (*ruledomain.Rule, error) {
	if merchantID == 0 {
		return nil, ruledomain.ErrInvalidMerchant
	}
	at = at.UTC()

	if s.cache != nil {
		if cached, ok := s.cache.Get(merchantID.String(), kind); ok {
			// A cached rule may have aged out of its own window.
			if cached.ContainsInstant(at) {
				return cached, nil
			}
			s.cache.Invalidate(merchantID.String(), kind)
		}
	}

	rule, err := s.repo.FindEffectiveAt(ctx, s.db, merchantID, kind, at)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ruledomain.ErrNoActiveRule
	}

	if s.cache != nil {
		s.cache.Set(merchantID.String(), kind, rule)
	}
	return rule, nil
}

func toResponse(r *ruledomain.Rule) *ruledomain.Response {
	return &ruledomain.Response{
		ID:            r.ID.String(),
		MerchantID:    r.MerchantID.String(),
		Kind:          r.Kind,
		PointsPerUnit: r.PointsPerUnit,
		UnitAmount:    r.UnitAmount,
		MinAmount:     r.MinAmount,
		MaxPoints:     r.MaxPoints,
		ExpiryDays:    r.ExpiryDays,
		ValidFrom:     r.ValidFrom,
		ValidUntil:    r.ValidUntil,
		Active:        r.Active,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
