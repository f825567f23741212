package sequence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/hourbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	lockTTL      = 10 * time.Second
	lockWait     = 3 * time.Second
	lockInterval = 50 * time.Millisecond
)

var ErrLockTimeout = errors.New("sequence lock timeout")

// SeriesLock serializes number allocation for one series-year across processes.
type SeriesLock interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NoopLock is used when no redis is configured. The unique index still guards numbers.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

type RedisLock struct {
	client *redis.Client
	script *redis.Script
	log    *zap.Logger
}

func NewRedisLock(client *redis.Client, log *zap.Logger) *RedisLock {
	return &RedisLock{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		log:    log.Named("invoice.sequence.lock"),
	}
}

func (l *RedisLock) tryLock(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Acquire polls SETNX until the lock is taken, lockWait passes or ctx ends.
func (l *RedisLock) Acquire(ctx context.Context, key string) (func(), error) {
	key = "hourbill:invoice-seq:" + key
	deadline := time.Now().Add(lockWait)
	for {
		token, ok, err := l.tryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				if err := l.script.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
					l.log.Warn("failed to release sequence lock", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockInterval):
		}
	}
}

type lockParams struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg config.Config
	Log *zap.Logger
}

// ProvideSeriesLock returns a redis lock when REDIS_ADDR is set and a no-op lock otherwise.
func ProvideSeriesLock(p lockParams) SeriesLock {
	if p.Cfg.RedisAddr == "" {
		return NoopLock{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     p.Cfg.RedisAddr,
		Password: p.Cfg.RedisPassword,
		DB:       p.Cfg.RedisDB,
	})
	p.Lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	p.Log.Info("invoice sequence lock backed by redis", zap.String("addr", p.Cfg.RedisAddr))
	return NewRedisLock(client, p.Log)
}
