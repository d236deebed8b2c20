package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestRunSucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	v, err := Run(context.Background(), "flaky", Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 3, calls)
}

func TestRunExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := Run(context.Background(), "always", Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	require.Contains(t, err.Error(), "after 2 attempts")
	require.Equal(t, 2, calls)
}

func TestRunStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad credentials")
	calls := 0
	_, err := Run(context.Background(), "login", Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestRunBackoffIsLinear(t *testing.T) {
	var stamps []time.Time
	base := 20 * time.Millisecond
	_, _ = Run(context.Background(), "timed", Policy{MaxAttempts: 3, BaseDelay: base}, func(ctx context.Context, attempt int) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, errFlaky
	})
	require.Len(t, stamps, 3)
	require.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), base)
	require.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 2*base)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Run(ctx, "cancelled", Policy{MaxAttempts: 5, BaseDelay: time.Hour}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		cancel()
		return 0, errFlaky
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
