package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Policy struct {
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number before the next try.
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt. Nil
	// retries everything.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// Run calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. Every attempt starts fn from the beginning.
func Run[T any](ctx context.Context, name string, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return zero, fmt.Errorf("%s: %w", name, lastErr)
		}
		v, err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.InfoContext(ctx, "operation recovered", "op", name, "attempt", attempt)
			}
			return v, nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			logger.WarnContext(ctx, "operation failed permanently", "op", name, "attempt", attempt, "err", err)
			return zero, fmt.Errorf("%s: %w", name, err)
		}
		if attempt == attempts {
			break
		}
		delay := p.BaseDelay * time.Duration(attempt)
		logger.WarnContext(ctx, "operation failed, retrying", "op", name, "attempt", attempt, "delay", delay, "err", err)
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: %w", name, lastErr)
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
