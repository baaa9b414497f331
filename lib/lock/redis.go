package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/artie-labs/tenantsync/lib/config/constants"
	"github.com/artie-labs/tenantsync/lib/jitter"
)

const (
	pollIntervalMs = 100
	pollMaxMs      = 5_000
)

// Only the holder of the token may delete or extend the key.
const (
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	renewScript   = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
)

var ErrLockLost = errors.New("lock expired before it was released")

var retryableNetworkErrors = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	io.EOF,
	syscall.ETIMEDOUT,
}

func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	for _, retryableErr := range retryableNetworkErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisLocker takes locks with SET NX, they expire after [ttl] if the holder dies. A held lock is extended every
// third of [ttl] until it is released.
type RedisLocker struct {
	client redisClient
	ttl    time.Duration
}

func NewRedisLocker(client redisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = constants.DefaultLockTTL
	}

	return &RedisLocker{client: client, ttl: ttl}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	for attempts := 0; ; attempts++ {
		acquired, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil && !isRetryableNetworkError(err) {
			return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
		}

		if acquired {
			return r.hold(key, token), nil
		}

		sleepDuration := jitter.Jitter(pollIntervalMs, pollMaxMs, attempts)
		slog.Debug("Lock is held, waiting", slog.String("key", key), slog.Duration("sleep", sleepDuration), slog.Any("err", err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock %q: %w", key, ctx.Err())
		case <-time.After(sleepDuration):
		}
	}
}

// hold keeps the lock alive in the background. Once a renewal finds the key gone or owned by someone else, the
// returned [Release] reports [ErrLockLost].
func (r *RedisLocker) hold(key, token string) Release {
	done := make(chan struct{})
	stopped := make(chan struct{})
	var lost atomic.Bool
	go func() {
		defer close(stopped)
		interval := r.ttl / 3
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				renewed, err := r.client.Eval(ctx, renewScript, []string{key}, token, r.ttl.Milliseconds()).Int64()
				cancel()
				if err != nil {
					slog.Warn("Failed to renew lock", slog.String("key", key), slog.Any("err", err))
					continue
				}

				if renewed == 0 {
					slog.Error("Lock expired while held", slog.String("key", key))
					lost.Store(true)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(done)
			<-stopped
			err = r.release(ctx, key, token, lost.Load())
		})
		return err
	}
}

func (r *RedisLocker) release(ctx context.Context, key, token string, lost bool) error {
	deleted, err := r.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %q: %w", key, err)
	}

	if lost || deleted == 0 {
		return fmt.Errorf("%w: %q", ErrLockLost, key)
	}
	return nil
}
