package failure

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	require.False(t, Retryable(nil))
	require.True(t, Retryable(fmt.Errorf("goto: %w", ErrNavigationTimeout)))
	require.True(t, Retryable(context.DeadlineExceeded))
	require.False(t, Retryable(fmt.Errorf("login: %w", ErrAuthenticationFailed)))
}
