package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBinaryMismatch(t *testing.T) {
	path, modTime, err := CurrentBinaryInfo()
	require.NoError(t, err)
	info := Info{BinaryPath: path, BinaryModTime: modTime}
	mgr := Manager{}
	require.False(t, mgr.binaryMismatch(info), "current binary")

	info.BinaryModTime = modTime.Add(-time.Minute)
	require.True(t, mgr.binaryMismatch(info), "mod time")

	info.BinaryPath = filepath.Join(os.TempDir(), "nonexistent-binary")
	info.BinaryModTime = modTime
	require.True(t, mgr.binaryMismatch(info), "path")
}

func TestIsRunningCleansStaleInfo(t *testing.T) {
	mgr := Manager{Dir: t.TempDir()}
	running, _, err := mgr.IsRunning()
	require.NoError(t, err)
	require.False(t, running)

	require.NoError(t, WriteInfo(mgr.InfoPath(), Info{PID: os.Getpid(), Socket: mgr.SocketPath()}))
	running, _, err = mgr.IsRunning()
	require.NoError(t, err)
	require.False(t, running)
	require.NoFileExists(t, mgr.InfoPath())
}

func TestIsRunningAndStop(t *testing.T) {
	mgr := Manager{Dir: t.TempDir()}
	server := NewServer(&fakeBackend{}, nil)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ServeSocket(context.Background(), mgr.SocketPath(), mgr.InfoPath(), server)
	}()
	require.NoError(t, waitForSocket(mgr.SocketPath(), 2*time.Second))

	var info Info
	require.Eventually(t, func() bool {
		running, got, err := mgr.IsRunning()
		info = got
		return err == nil && running
	}, 2*time.Second, 20*time.Millisecond)
	require.Equal(t, os.Getpid(), info.PID)

	require.NoError(t, mgr.Stop())
	require.NoError(t, <-errCh)
	running, _, err := mgr.IsRunning()
	require.NoError(t, err)
	require.False(t, running)
}
