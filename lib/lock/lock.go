package lock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/artie-labs/tenantsync/lib/config"
)

// Release gives up a lock, it is safe to call once.
type Release func(ctx context.Context) error

// Locker hands out named locks. Acquire blocks until the lock is free or [ctx] is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// New returns a [RedisLocker] when redis is configured so that separate processes exclude each other, otherwise a
// [LocalLocker] that only guards this process.
func New(cfg config.Config) Locker {
	if cfg.Redis == nil {
		return NewLocalLocker()
	}

	slog.Info("Using redis for locks", slog.String("addr", cfg.Redis.Addr))
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return NewRedisLocker(client, cfg.Redis.LockTTL)
}

// Key builds a lock name that is scoped to this tool.
func Key(parts ...string) string {
	key := "tenantsync:lock"
	for _, part := range parts {
		key += fmt.Sprintf(":%s", part)
	}
	return key
}
