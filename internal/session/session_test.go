package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patrickjm/patsearch/internal/browser"
	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/source"
)

var desc = source.Descriptor{Name: "test", SearchURL: "https://example.test/", StepTimeoutMs: 1000}

func TestOpenNavigateClose(t *testing.T) {
	engine := &browser.FakeEngine{Site: &browser.FakeSite{Pages: map[string]string{
		"https://example.test/": `<html><body><h1>Search</h1><input name="q"></body></html>`,
	}}}
	h, err := Open(context.Background(), engine, desc, Options{})
	require.NoError(t, err)
	require.NoError(t, h.Navigate(context.Background(), "https://example.test/"))
	require.Equal(t, "https://example.test/", h.URL())

	n, err := h.Count(context.Background(), `input[name="q"]`)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	snap, err := h.Snapshot(context.Background())
	require.NoError(t, err)
	require.Contains(t, snap.Text(), "Search")

	h.Close()
	h.Close()
	sess := engine.Sessions[0]
	require.Equal(t, 1, sess.CloseCount)
	require.True(t, sess.Pages[0].Closed)

	_, err = h.Page()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, h.Click(context.Background(), "h1"), ErrClosed)
	_, err = snap.Screenshot(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestCloseSwallowsErrors(t *testing.T) {
	engine := &browser.FakeEngine{}
	h, err := Open(context.Background(), engine, desc, Options{})
	require.NoError(t, err)
	engine.Sessions[0].CloseErr = errors.New("browser already gone")
	require.NotPanics(t, h.Close)
}

func TestOpenFailure(t *testing.T) {
	engine := &browser.FakeEngine{StartErr: errors.New("no browser")}
	_, err := Open(context.Background(), engine, desc, Options{})
	require.ErrorContains(t, err, "no browser")
}

func TestNavigateTimeout(t *testing.T) {
	site := &browser.FakeSite{
		GotoErr:  map[string]error{"https://slow.test/": browser.ErrTimeout},
		SlowLoad: map[string]bool{"https://heavy.test/": true},
	}
	h, err := Open(context.Background(), &browser.FakeEngine{Site: site}, desc, Options{})
	require.NoError(t, err)
	defer h.Close()

	err = h.Navigate(context.Background(), "https://slow.test/")
	require.ErrorIs(t, err, failure.ErrNavigationTimeout)

	err = h.Navigate(context.Background(), "https://heavy.test/")
	require.ErrorIs(t, err, failure.ErrNavigationTimeout)

	timedOut, err := h.Settle(context.Background())
	require.NoError(t, err)
	require.True(t, timedOut)
}

func TestSettleDelayHonoursCancellation(t *testing.T) {
	h, err := Open(context.Background(), &browser.FakeEngine{}, desc, Options{Settle: time.Hour})
	require.NoError(t, err)
	defer h.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Settle(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSnapshotText(t *testing.T) {
	snap := NewSnapshot("u", `<html><head><style>.x{}</style></head><body>
<div>First  line</div><script>var hidden = 1;</script><p>Second<br>Third</p></body></html>`)
	require.Equal(t, "First line\nSecond\nThird", snap.Text())

	_, err := snap.Screenshot(context.Background())
	require.ErrorIs(t, err, ErrNoScreenshot)
	snap.WithScreenshot(func(context.Context) ([]byte, error) { return []byte("png"), nil })
	img, err := snap.Screenshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("png"), img)
}
