package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/source"
)

type fakeBackend struct {
	mu      sync.Mutex
	queries []string
	// gate, when set, holds every search until it is closed or ctx ends.
	gate    chan struct{}
	started chan struct{}
}

func (b *fakeBackend) Search(ctx context.Context, name, query string, maxPages int) record.ResultSet {
	b.mu.Lock()
	b.queries = append(b.queries, query)
	b.mu.Unlock()
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return record.Failure(name, ctx.Err())
		}
	}
	if query == "nothing" {
		return record.NoResults(name)
	}
	return record.Merge(name, []record.Record{{NaturalKey: "BR102020001234", Title: query}})
}

func (b *fakeBackend) List() ([]source.Descriptor, error) {
	return source.Builtins(), nil
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("unix", path, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return errors.New("socket not ready")
}

func startServer(t *testing.T, backend Backend) (string, string, chan error) {
	t.Helper()
	dir := t.TempDir()
	socket := filepath.Join(dir, "daemon.sock")
	info := filepath.Join(dir, "daemon.json")
	server := NewServer(backend, nil)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ServeSocket(context.Background(), socket, info, server)
	}()
	require.NoError(t, waitForSocket(socket, 2*time.Second))
	return socket, info, errCh
}

func TestServerSearchAndSources(t *testing.T) {
	backend := &fakeBackend{}
	socket, info, errCh := startServer(t, backend)
	require.Eventually(t, func() bool {
		_, err := os.Stat(info)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	client, err := NewClient(socket)
	require.NoError(t, err)
	defer client.Close()

	rs, err := client.Search("inpi", "aspirin", 2)
	require.NoError(t, err)
	require.Equal(t, record.StatusOK, rs.Status)
	require.Equal(t, "BR102020001234", rs.Records[0].NaturalKey)

	rs, err = client.Search("inpi", "nothing", 0)
	require.NoError(t, err)
	require.Equal(t, record.StatusNoResults, rs.Status)
	require.Equal(t, 1, rs.Count)

	sources, err := client.Sources()
	require.NoError(t, err)
	require.Len(t, sources, 2)

	status, err := client.Status()
	require.NoError(t, err)
	require.EqualValues(t, 2, status.Served)
	require.Zero(t, status.InFlight)

	require.Error(t, client.Call("Bogus", nil, nil))

	require.NoError(t, client.Stop())
	require.NoError(t, <-errCh)
	require.NoFileExists(t, info)
	require.NoFileExists(t, socket)
}

func TestServerSearchesRunConcurrently(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{}), started: make(chan struct{}, 2)}
	socket, _, errCh := startServer(t, backend)

	results := make(chan record.ResultSet, 2)
	for _, q := range []string{"aspirin", "ibuprofen"} {
		go func(q string) {
			client, err := NewClient(socket)
			if err != nil {
				results <- record.Failure("inpi", err)
				return
			}
			defer client.Close()
			rs, err := client.Search("inpi", q, 0)
			if err != nil {
				rs = record.Failure("inpi", err)
			}
			results <- rs
		}(q)
	}
	// Both searches must be inside the backend at the same time.
	for i := 0; i < 2; i++ {
		select {
		case <-backend.started:
		case <-time.After(2 * time.Second):
			t.Fatal("searches were serialized")
		}
	}
	close(backend.gate)
	for i := 0; i < 2; i++ {
		require.Equal(t, record.StatusOK, (<-results).Status)
	}

	client, err := NewClient(socket)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Stop())
	require.NoError(t, <-errCh)
}

func TestStopCancelsInFlightSearch(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	socket, _, errCh := startServer(t, backend)

	done := make(chan record.ResultSet, 1)
	go func() {
		client, err := NewClient(socket)
		if err != nil {
			done <- record.Failure("inpi", err)
			return
		}
		defer client.Close()
		rs, err := client.Search("inpi", "aspirin", 0)
		if err != nil {
			rs = record.Failure("inpi", err)
		}
		done <- rs
	}()
	<-backend.started

	client, err := NewClient(socket)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Stop())

	rs := <-done
	require.Equal(t, record.StatusError, rs.Status)
	require.Contains(t, rs.Records[0].Abstract, "context canceled")
	require.NoError(t, <-errCh)
}

func TestServeSocketStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	socket := filepath.Join(dir, "daemon.sock")
	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer(&fakeBackend{}, nil)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ServeSocket(ctx, socket, "", server)
	}()
	require.NoError(t, waitForSocket(socket, 2*time.Second))
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	select {
	case <-server.Done():
	default:
		t.Fatal("server not marked stopped")
	}
}
