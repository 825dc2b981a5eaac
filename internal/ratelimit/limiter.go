package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/tollwaylabs/tollway/internal/config"
)

const keyUsageTrackTenant = "usage:track:tenant:%s"

// TenantLimiter throttles usage-tracking calls per tenant ahead of the
// ledger. Disabled deployments get a nil limiter; every method is nil-safe
// and fails open.
type TenantLimiter struct {
	enabled bool

	client *redis.Client
	bucket *TokenBucket
	locker *Locker

	rate  float64
	burst int
}

func NewTenantLimiter(cfg config.Config) (*TenantLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("rate limit rate and burst must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &TenantLimiter{
		enabled: true,
		client:  client,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    float64(limitCfg.Rate),
		burst:   limitCfg.Burst,
	}, nil
}

func (l *TenantLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes one token from the tenant's bucket. Disabled limiters
// always allow.
func (l *TenantLimiter) Allow(ctx context.Context, tenantID snowflake.ID) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUsageTrackTenant, tenantID.String()), l.rate, l.burst)
}

// TryLock grabs a cross-replica mutex, for work exactly one replica should
// run per interval. Callers on disabled limiters win the lock locally.
func (l *TenantLimiter) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, key, ttl)
}

func (l *TenantLimiter) Unlock(ctx context.Context, key, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, key, token)
}
