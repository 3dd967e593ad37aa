package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cirrus/internal/config"
)

const (
	keyCostIngestGlobal   = "cost:ingest:global"
	keyCostIngestProvider = "cost:ingest:provider:%s"
	keyCostIngestLock     = "cost:ingest:lock:%s"
)

// CostIngestLimiter throttles the cost-entry ingestion endpoint. A nil
// limiter (rate limiting disabled) allows everything.
type CostIngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	globalRate    float64
	globalBurst   int
	providerRate  float64
	providerBurst int
	lockTTL       time.Duration
}

func NewCostIngestLimiter(cfg config.Config) (*CostIngestLimiter, error) {
	if !cfg.RateLimitEnabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if cfg.IngestRatePerSecond <= 0 || cfg.IngestBurst <= 0 {
		return nil, errors.New("ingest rate limit must be positive")
	}
	if cfg.IngestProviderRate <= 0 || cfg.IngestProviderBurst <= 0 {
		return nil, errors.New("ingest provider rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &CostIngestLimiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		locker:        NewLocker(client),
		globalRate:    cfg.IngestRatePerSecond,
		globalBurst:   cfg.IngestBurst,
		providerRate:  cfg.IngestProviderRate,
		providerBurst: cfg.IngestProviderBurst,
		lockTTL:       time.Duration(cfg.IngestLockTTLSeconds) * time.Second,
	}, nil
}

func (l *CostIngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *CostIngestLimiter) AllowGlobal(ctx context.Context) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyCostIngestGlobal, l.globalRate, l.globalBurst)
}

func (l *CostIngestLimiter) AllowProvider(ctx context.Context, provider string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyCostIngestProvider, strings.ToLower(strings.TrimSpace(provider)))
	return l.bucket.Allow(ctx, key, l.providerRate, l.providerBurst)
}

// TryLockProvider serializes concurrent batch deliveries for one provider.
func (l *CostIngestLimiter) TryLockProvider(ctx context.Context, provider string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	key := fmt.Sprintf(keyCostIngestLock, strings.ToLower(strings.TrimSpace(provider)))
	return l.locker.TryLock(ctx, key, l.lockTTL)
}

func (l *CostIngestLimiter) ReleaseProvider(ctx context.Context, provider, token string) error {
	if !l.Enabled() {
		return nil
	}
	key := fmt.Sprintf(keyCostIngestLock, strings.ToLower(strings.TrimSpace(provider)))
	return l.locker.Release(ctx, key, token)
}
