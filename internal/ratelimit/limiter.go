// Package ratelimit throttles expensive write endpoints per actor.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/hourbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPattern = "hourbill:ratelimit:%s:%s"

var ErrRateLimited = errors.New("rate_limited")

// Limiter decides whether subject may perform one more call in scope.
type Limiter interface {
	Allow(ctx context.Context, scope, subject string) (Result, error)
}

// NoopLimiter allows everything. It is used when rate limiting is disabled.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string, string) (Result, error) {
	return Result{Allowed: true}, nil
}

// RedisLimiter applies one token bucket per scope and subject.
type RedisLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewRedisLimiter(bucket *TokenBucket, rate float64, burst int) (*RedisLimiter, error) {
	if bucket == nil {
		return nil, ErrNotConfigured
	}
	if rate <= 0 || burst <= 0 {
		return nil, ErrInvalidBucket
	}
	return &RedisLimiter{bucket: bucket, rate: rate, burst: burst}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, scope, subject string) (Result, error) {
	return l.bucket.Take(ctx, Key(scope, subject), l.rate, l.burst)
}

func Key(scope, subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return fmt.Sprintf(keyPattern, strings.TrimSpace(scope), subject)
}

type Params struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg config.Config
	Log *zap.Logger
}

// Provide returns a redis limiter when RATE_LIMIT_ENABLED is set and a no-op otherwise.
func Provide(p Params) (Limiter, error) {
	cfg := p.Cfg.RateLimit
	if !cfg.Enabled {
		return NoopLimiter{}, nil
	}
	if p.Cfg.RedisAddr == "" {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.Cfg.RedisAddr,
		Password: p.Cfg.RedisPassword,
		DB:       p.Cfg.RedisDB,
	})
	limiter, err := NewRedisLimiter(NewTokenBucket(client), cfg.Rate, cfg.Burst)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	p.Lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	p.Log.Info("write rate limit enabled",
		zap.Float64("rate_per_second", cfg.Rate),
		zap.Int("burst", cfg.Burst),
	)
	return limiter, nil
}
