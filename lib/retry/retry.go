package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/artie-labs/tenantsync/lib/jitter"
)

type Config struct {
	jitterBaseMs int
	jitterMaxMs  int
	maxAttempts  int
	isRetryable  func(err error) bool
}

type NewConfigArgs struct {
	JitterBaseMs int
	JitterMaxMs  int
	MaxAttempts  int
	// IsRetryable defaults to retrying every error.
	IsRetryable func(err error) bool
}

func NewConfig(args NewConfigArgs) Config {
	isRetryable := args.IsRetryable
	if isRetryable == nil {
		isRetryable = func(_ error) bool { return true }
	}

	return Config{
		jitterBaseMs: max(args.JitterBaseMs, 0),
		jitterMaxMs:  max(args.JitterMaxMs, 0),
		maxAttempts:  max(args.MaxAttempts, 1),
		isRetryable:  isRetryable,
	}
}

// wait sleeps before [attempt], it returns early with the context error if [ctx] is done.
func (c Config) wait(ctx context.Context, attempt int, err error) error {
	if attempt == 0 {
		return nil
	}

	sleepDuration := jitter.Jitter(c.jitterBaseMs, c.jitterMaxMs, attempt-1)
	slog.Info("An error occurred, retrying after delay...",
		slog.Duration("sleep", sleepDuration),
		slog.Int("attemptsLeft", c.maxAttempts-attempt),
		slog.Any("err", err),
	)

	if sleepDuration <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(sleepDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithRetries calls [f] until it succeeds, returns an error that is not retryable or runs out of attempts.
func WithRetries[T any](ctx context.Context, cfg Config, f func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var result T
	var err error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if waitErr := cfg.wait(ctx, attempt, err); waitErr != nil {
			return result, waitErr
		}

		result, err = f(ctx, attempt)
		if err == nil || !cfg.isRetryable(err) {
			break
		}
	}
	return result, err
}
