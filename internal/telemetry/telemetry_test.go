package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv(EndpointEnv, "")
	shutdown, err := Setup(context.Background(), "patsearch-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpoint(t *testing.T) {
	t.Setenv(EndpointEnv, "http://127.0.0.1:1")
	shutdown, err := Setup(context.Background(), "patsearch-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
}
