// Package paginate walks result pages by following a "next" control.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/patrickjm/patsearch/internal/session"
)

// Walker tracks how many result pages have been visited. The first results
// page counts as page one.
type Walker struct {
	Selectors []string
	MaxPages  int
	Logger    *slog.Logger

	page int
}

func New(selectors []string, maxPages int, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPages < 1 {
		maxPages = 1
	}
	return &Walker{Selectors: selectors, MaxPages: maxPages, Logger: logger, page: 1}
}

func (w *Walker) Page() int {
	return w.page
}

// HasNext reports whether another page may be visited: the bound is not
// reached and a next control is on the page.
func (w *Walker) HasNext(ctx context.Context, h *session.Handle) (bool, error) {
	sel, err := w.next(ctx, h)
	return sel != "", err
}

// Advance clicks the next control and waits for the new page. It returns
// false once the walk is over. A failed click ends the walk without error.
func (w *Walker) Advance(ctx context.Context, h *session.Handle) (bool, error) {
	sel, err := w.next(ctx, h)
	if err != nil || sel == "" {
		return false, err
	}
	if err := h.Click(ctx, sel); err != nil {
		if ctx.Err() != nil || errors.Is(err, session.ErrClosed) {
			return false, err
		}
		w.Logger.Info("next page control did not respond, stopping", "page", w.page, "selector", sel, "error", err)
		return false, nil
	}
	if _, err := h.Settle(ctx); err != nil {
		return false, fmt.Errorf("settle page %d: %w", w.page+1, err)
	}
	w.page++
	w.Logger.Debug("advanced", "page", w.page)
	return true, nil
}

func (w *Walker) next(ctx context.Context, h *session.Handle) (string, error) {
	if w.page >= w.MaxPages {
		return "", nil
	}
	for _, sel := range w.Selectors {
		n, err := h.Count(ctx, sel)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, session.ErrClosed) {
				return "", err
			}
			continue
		}
		if n > 0 {
			return sel, nil
		}
	}
	return "", nil
}
