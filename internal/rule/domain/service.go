package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, merchantID string) ([]Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	Deactivate(ctx context.Context, id string) error

	// Resolve finds the single rule effective for (merchant, kind) at the
	// given instant. ErrNoActiveRule is an expected business outcome.
	Resolve(ctx context.Context, merchantID snowflake.ID, kind RuleKind, at time.Time) (*Rule, error)
}

type CreateRequest struct {
	MerchantID    string     `json:"merchant_id"`
	Kind          string     `json:"kind"`
	PointsPerUnit int64      `json:"points_per_unit"`
	UnitAmount    int64      `json:"unit_amount"`
	MinAmount     *int64     `json:"min_amount,omitempty"`
	MaxPoints     *int64     `json:"max_points,omitempty"`
	ExpiryDays    *int       `json:"expiry_days,omitempty"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
}

type Response struct {
	ID            string     `json:"id"`
	MerchantID    string     `json:"merchant_id"`
	Kind          RuleKind   `json:"kind"`
	PointsPerUnit int64      `json:"points_per_unit"`
	UnitAmount    int64      `json:"unit_amount"`
	MinAmount     *int64     `json:"min_amount,omitempty"`
	MaxPoints     *int64     `json:"max_points,omitempty"`
	ExpiryDays    *int       `json:"expiry_days,omitempty"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

var (
	ErrInvalidMerchant      = errors.New("invalid_merchant")
	ErrInvalidKind          = errors.New("invalid_kind")
	ErrInvalidPointsPerUnit = errors.New("invalid_points_per_unit")
	ErrInvalidUnitAmount    = errors.New("invalid_unit_amount")
	ErrInvalidMinAmount     = errors.New("invalid_min_amount")
	ErrInvalidMaxPoints     = errors.New("invalid_max_points")
	ErrInvalidExpiryDays    = errors.New("invalid_expiry_days")
	ErrInvalidWindow        = errors.New("invalid_validity_window")
	ErrInvalidID            = errors.New("invalid_id")
	ErrNotFound             = errors.New("not_found")
	ErrNoActiveRule         = errors.New("no_active_rule")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}

// ParseKind normalizes a rule kind string.
func ParseKind(value string) (RuleKind, error) {
	switch RuleKind(value) {
	case RuleKindEarn:
		return RuleKindEarn, nil
	case RuleKindBurn:
		return RuleKindBurn, nil
	default:
		return "", ErrInvalidKind
	}
}
