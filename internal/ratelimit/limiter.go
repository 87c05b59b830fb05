package ratelimit

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/charitydesk/internal/config"
)

const (
	EndpointCheckout = "checkout"
	EndpointClaim    = "claim"

	keyPattern = "ratelimit:%s:%s"
)

type Policy struct {
	Rate  float64
	Burst int
}

type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*Result, error)
}

// Limiter applies per-endpoint token buckets keyed by caller.
type Limiter struct {
	bucket   Bucket
	policies map[string]Policy
}

func NewLimiter(cfg config.Config, client *redis.Client) *Limiter {
	policies := map[string]Policy{
		EndpointCheckout: {Rate: cfg.Limits.CheckoutRate, Burst: int(cfg.Limits.CheckoutBurst)},
		EndpointClaim:    {Rate: cfg.Limits.ClaimRate, Burst: int(cfg.Limits.ClaimBurst)},
	}
	tb := NewTokenBucket(client)
	if tb == nil {
		return NewLimiterWith(nil, policies)
	}
	return NewLimiterWith(tb, policies)
}

// NewLimiterWith builds a limiter over any bucket implementation. A nil bucket disables limiting.
func NewLimiterWith(b Bucket, policies map[string]Policy) *Limiter {
	return &Limiter{bucket: b, policies: policies}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token for subject on endpoint. Endpoints without a usable policy are unlimited.
func (l *Limiter) Allow(ctx context.Context, endpoint, subject string) (*Result, error) {
	policy, ok := l.policies[endpoint]
	if !l.Enabled() || !ok || policy.Rate <= 0 || policy.Burst <= 0 {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPattern, endpoint, subject), policy.Rate, policy.Burst)
}
