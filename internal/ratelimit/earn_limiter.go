package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/smallbiznis/loyara/internal/config"
)

const (
	keyEarnUser     = "loyara:earn:user:%s"
	keyEarnMerchant = "loyara:earn:merchant:%s"
)

// EarnLimiter throttles the earn endpoint per user and per merchant. A nil
// limiter (rate limiting disabled) allows everything.
type EarnLimiter struct {
	enabled bool

	bucket *TokenBucket

	userRate      float64
	userBurst     int
	merchantRate  float64
	merchantBurst int
}

// Decision reports which bucket denied the request, if any.
type Decision struct {
	Allowed    bool
	DeniedBy   string
	RetryAfter time.Duration
}

func NewEarnLimiter(cfg config.Config) (*EarnLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.EarnUserRate <= 0 || limitCfg.EarnUserBurst <= 0 {
		return nil, errors.New("earn user rate limit must be positive")
	}
	if limitCfg.EarnMerchantRate <= 0 || limitCfg.EarnMerchantBurst <= 0 {
		return nil, errors.New("earn merchant rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &EarnLimiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		userRate:      limitCfg.EarnUserRate,
		userBurst:     limitCfg.EarnUserBurst,
		merchantRate:  limitCfg.EarnMerchantRate,
		merchantBurst: limitCfg.EarnMerchantBurst,
	}, nil
}

// Allow checks the merchant bucket first so one hot merchant cannot drain
// user buckets for requests that would be rejected anyway.
func (l *EarnLimiter) Allow(ctx context.Context, userID, merchantID string) (Decision, error) {
	if l == nil || !l.enabled {
		return Decision{Allowed: true}, nil
	}

	merchantRes, err := l.bucket.Allow(ctx, fmt.Sprintf(keyEarnMerchant, merchantID), l.merchantRate, l.merchantBurst)
	if err != nil {
		return Decision{}, err
	}
	if !merchantRes.Allowed {
		return Decision{DeniedBy: "merchant", RetryAfter: merchantRes.RetryAfter}, nil
	}

	userRes, err := l.bucket.Allow(ctx, fmt.Sprintf(keyEarnUser, userID), l.userRate, l.userBurst)
	if err != nil {
		return Decision{}, err
	}
	if !userRes.Allowed {
		return Decision{DeniedBy: "user", RetryAfter: userRes.RetryAfter}, nil
	}

	return Decision{Allowed: true}, nil
}
