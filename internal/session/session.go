// Package session owns the browser session of one search request.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickjm/patsearch/internal/browser"
	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/source"
)

var ErrClosed = errors.New("session closed")

type Options struct {
	Browser browser.StartOptions
	// Settle is the fixed delay after a load for script-heavy pages. The
	// descriptor's own settle delay wins when set.
	Settle time.Duration
	Logger *slog.Logger
}

// Handle is the only way to touch the page of a session. It must not be
// shared between requests and is unusable after Close.
type Handle struct {
	session browser.Session
	page    browser.Page
	timeout time.Duration
	settle  time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func Open(ctx context.Context, engine browser.Engine, desc source.Descriptor, opts Options) (*Handle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := engine.Start(opts.Browser)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	page, err := sess.NewPage()
	if err != nil {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("close browser after failed open", "error", cerr)
		}
		return nil, fmt.Errorf("open page: %w", err)
	}
	h := &Handle{
		session: sess,
		page:    page,
		timeout: desc.StepTimeout(),
		settle:  opts.Settle,
		logger:  logger.With("source", desc.Name),
	}
	if desc.Settle() > 0 {
		h.settle = desc.Settle()
	}
	if err := page.SetTimeout(int(h.timeout.Milliseconds())); err != nil {
		h.Close()
		return nil, fmt.Errorf("set timeout: %w", err)
	}
	return h, nil
}

// Page returns the underlying page, or ErrClosed.
func (h *Handle) Page() (browser.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	return h.page, nil
}

// Navigate loads url and blocks until the page is ready.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	h.logger.Debug("navigate", "url", url)
	err := h.do(ctx, "goto "+url, func(p browser.Page) error { return p.Goto(url) })
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s: %v", failure.ErrNavigationTimeout, url, err)
		}
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	timedOut, err := h.Settle(ctx)
	if err != nil {
		return err
	}
	if timedOut {
		return fmt.Errorf("%w: %s did not finish loading", failure.ErrNavigationTimeout, url)
	}
	return nil
}

// Settle waits for the DOM to load and then for the settle delay. A load
// timeout is reported, not returned as an error.
func (h *Handle) Settle(ctx context.Context) (bool, error) {
	ms := int(h.timeout.Milliseconds())
	err := h.do(ctx, "wait for load", func(p browser.Page) error { return p.WaitForLoad(ms) })
	timedOut := false
	if err != nil {
		if !isTimeout(err) || ctx.Err() != nil {
			return false, err
		}
		timedOut = true
		h.logger.Debug("content did not settle in time", "timeout", h.timeout)
	}
	if h.settle > 0 {
		if err := sleep(ctx, h.settle); err != nil {
			return timedOut, err
		}
	}
	return timedOut, nil
}

func (h *Handle) Fill(ctx context.Context, selector, value string) error {
	return h.do(ctx, "fill "+selector, func(p browser.Page) error { return p.Fill(selector, value) })
}

func (h *Handle) Click(ctx context.Context, selector string) error {
	return h.do(ctx, "click "+selector, func(p browser.Page) error { return p.Click(selector) })
}

func (h *Handle) Press(ctx context.Context, selector, key string) error {
	return h.do(ctx, "press "+key, func(p browser.Page) error { return p.Press(selector, key) })
}

func (h *Handle) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := h.do(ctx, "count "+selector, func(p browser.Page) error {
		var err error
		n, err = p.Count(selector)
		return err
	})
	return n, err
}

func (h *Handle) URL() string {
	page, err := h.Page()
	if err != nil {
		return ""
	}
	u, _ := page.URL()
	return u
}

// Snapshot captures the rendered HTML. The screenshot is taken lazily and
// only while the handle is open.
func (h *Handle) Snapshot(ctx context.Context) (*Snapshot, error) {
	var html string
	err := h.do(ctx, "content", func(p browser.Page) error {
		var err error
		html, err = p.Content()
		return err
	})
	if err != nil {
		return nil, err
	}
	snap := NewSnapshot(h.URL(), html)
	snap.capture = func(ctx context.Context) ([]byte, error) {
		var img []byte
		err := h.do(ctx, "screenshot", func(p browser.Page) error {
			var err error
			img, err = p.Screenshot(true)
			return err
		})
		return img, err
	}
	return snap, nil
}

// Close releases the page and browser. It runs once, never panics and only
// logs failures.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Warn("panic while closing session", "panic", r)
			}
		}()
		if err := h.page.Close(); err != nil {
			h.logger.Warn("close page", "error", err)
		}
		if err := h.session.Close(); err != nil {
			h.logger.Warn("close browser", "error", err)
		}
	})
}

func (h *Handle) do(ctx context.Context, op string, fn func(browser.Page) error) error {
	page, err := h.Page()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn(page) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, browser.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
