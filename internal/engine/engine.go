// Package engine runs one patent search against one source: open a browser
// session, sign in when needed, submit the query, walk the result pages and
// merge what every page yields.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/patrickjm/patsearch/internal/ai"
	"github.com/patrickjm/patsearch/internal/browser"
	"github.com/patrickjm/patsearch/internal/config"
	"github.com/patrickjm/patsearch/internal/discover"
	"github.com/patrickjm/patsearch/internal/extract"
	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/interact"
	"github.com/patrickjm/patsearch/internal/locator"
	"github.com/patrickjm/patsearch/internal/ocr"
	"github.com/patrickjm/patsearch/internal/paginate"
	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/retry"
	"github.com/patrickjm/patsearch/internal/session"
	"github.com/patrickjm/patsearch/internal/source"
)

var tracer = otel.Tracer("github.com/patrickjm/patsearch/internal/engine")

// Engine holds no per-search state; concurrent searches each get their own
// browser session.
type Engine struct {
	Browser      browser.Engine
	StartOptions browser.StartOptions
	Settle       time.Duration
	NextPage     []string
	Discoverer   *discover.Discoverer
	Driver       *interact.Driver
	Chain        *extract.Chain
	Retry        retry.Policy
	Logger       *slog.Logger
}

// New wires an engine from configuration. Nil collaborators disable AI
// assistance and OCR.
func New(cfg config.Config, be browser.Engine, completer ai.Completer, recognizer ocr.Recognizer, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	chain, err := extract.NewChain(extract.Options{
		KeyPatterns:  cfg.KeyPatterns,
		AI:           completer,
		SnippetChars: cfg.AI.SnippetChars,
		OCR:          recognizer,
		MinTextChars: cfg.OCR.MinTextChars,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{
		Browser: be,
		StartOptions: browser.StartOptions{
			Browser:  cfg.Browser,
			Channel:  cfg.Channel,
			Headless: cfg.Headless,
			Width:    1366,
			Height:   900,
		},
		Settle:   cfg.SettleDelay,
		NextPage: cfg.NextPage,
		Discoverer: &discover.Discoverer{
			AI: completer,
			Keywords: discover.Keywords{
				Login:    cfg.Discovery.Login,
				Password: cfg.Discovery.Password,
				Query:    cfg.Discovery.Query,
				Submit:   cfg.Discovery.Submit,
			},
			ExcerptChars: cfg.AI.ExcerptChars,
			Logger:       logger,
		},
		Driver: &interact.Driver{Logger: logger},
		Chain:  chain,
		Retry: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
		},
		Logger: logger,
	}, nil
}

// FromConfig is New with the AI client and tesseract built from cfg when
// they are enabled.
func FromConfig(cfg config.Config, be browser.Engine, logger *slog.Logger) (*Engine, error) {
	var completer ai.Completer
	if cfg.AI.Enabled() {
		client, err := ai.NewClient(ai.Options{
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			APIKey:  cfg.AI.APIKey,
			Timeout: cfg.AI.Timeout,
			Rate:    cfg.AI.Rate,
			Burst:   cfg.AI.Burst,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		completer = client
	}
	var recognizer ocr.Recognizer
	if cfg.OCR.Enabled {
		recognizer = ocr.Tesseract{Binary: cfg.OCR.Binary, Languages: cfg.OCR.Languages, Timeout: cfg.OCR.Timeout}
	}
	return New(cfg, be, completer, recognizer, logger)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Search never fails: every outcome is a well-formed result set, with a
// NO_RESULTS or ERROR sentinel when there is nothing to return.
func (e *Engine) Search(ctx context.Context, desc source.Descriptor, query string) (rs record.ResultSet) {
	id := uuid.NewString()
	logger := e.logger().With("search_id", id, "source", desc.Name)
	ctx, span := tracer.Start(ctx, "engine.search", trace.WithAttributes(
		attribute.String("search.id", id),
		attribute.String("search.source", desc.Name),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("search panicked", "panic", r)
			rs = record.Failure(desc.Name, fmt.Errorf("internal error: %v", r))
		}
		span.SetAttributes(attribute.String("search.status", string(rs.Status)), attribute.Int("search.count", rs.Count))
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return record.Failure(desc.Name, errors.New("query is empty"))
	}
	if err := desc.Validate(); err != nil {
		return record.Failure(desc.Name, err)
	}

	started := time.Now()
	policy := e.Retry
	policy.Retryable = failure.Retryable
	policy.Logger = logger
	pages, err := retry.Run(ctx, "search "+desc.Name, policy, func(ctx context.Context, attempt int) ([][]record.Record, error) {
		return e.attempt(ctx, logger.With("attempt", attempt), desc, query)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("search failed", "error", err, "elapsed", time.Since(started))
		return record.Failure(desc.Name, err)
	}
	rs = record.Merge(desc.Name, pages...)
	logger.Info("search finished", "status", rs.Status, "count", rs.Count, "pages", len(pages), "elapsed", time.Since(started))
	return rs
}

// attempt runs the whole flow once. The session is closed on every return.
func (e *Engine) attempt(ctx context.Context, logger *slog.Logger, desc source.Descriptor, query string) ([][]record.Record, error) {
	ctx, span := tracer.Start(ctx, "engine.attempt")
	defer span.End()

	h, err := session.Open(ctx, e.Browser, desc, session.Options{Browser: e.StartOptions, Settle: e.Settle, Logger: logger})
	if err != nil {
		return nil, err
	}
	defer h.Close()

	if desc.RequiresAuth {
		if err := e.login(ctx, logger, h, desc); err != nil {
			return nil, err
		}
	}

	if desc.DirectQuery() {
		if err := h.Navigate(ctx, desc.QueryEntry(query)); err != nil {
			return nil, err
		}
	} else {
		if err := h.Navigate(ctx, desc.SearchURL); err != nil {
			return nil, err
		}
		snap, err := h.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		set := e.Discoverer.Discover(ctx, snap, locator.KindSearch, desc.Fallback(locator.KindSearch))
		if _, err := e.Driver.SubmitQuery(ctx, h, set, query); err != nil {
			return nil, err
		}
	}

	walker := paginate.New(e.nextSelectors(desc), desc.PageLimit(), logger)
	var pages [][]record.Record
	for {
		records, err := e.page(ctx, logger, h, walker.Page(), desc)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			pages = append(pages, records)
		} else if walker.Page() == 1 {
			break
		}
		more, err := walker.Advance(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("pagination stopped", "page", walker.Page(), "error", err)
			break
		}
		if !more {
			break
		}
	}
	return pages, nil
}

func (e *Engine) login(ctx context.Context, logger *slog.Logger, h *session.Handle, desc source.Descriptor) error {
	if err := h.Navigate(ctx, desc.LoginEntry()); err != nil {
		return err
	}
	snap, err := h.Snapshot(ctx)
	if err != nil {
		return err
	}
	set := e.Discoverer.Discover(ctx, snap, locator.KindLogin, desc.Fallback(locator.KindLogin))
	res, err := e.Driver.Authenticate(ctx, h, set, desc.Credentials)
	if err != nil {
		return err
	}
	logger.Info("authenticated", "result", res)
	return nil
}

// page extracts the current page. An empty page is not an error, except on
// an anonymous source whose first page turns out to be a login form.
func (e *Engine) page(ctx context.Context, logger *slog.Logger, h *session.Handle, n int, desc source.Descriptor) ([]record.Record, error) {
	ctx, span := tracer.Start(ctx, "engine.page", trace.WithAttributes(attribute.Int("page.number", n)))
	defer span.End()

	snap, err := h.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	records, strategy, err := e.Chain.Extract(ctx, snap)
	if err != nil {
		if !errors.Is(err, failure.ErrExtractionEmpty) {
			return nil, err
		}
		if n == 1 && !desc.RequiresAuth && interact.LoginWall(snap) {
			err := fmt.Errorf("%w: %s requires authentication", failure.ErrAuthenticationFailed, desc.Name)
			span.RecordError(err)
			return nil, err
		}
		logger.Info("page yielded no records", "page", n, "url", snap.URL)
		return nil, nil
	}
	span.SetAttributes(attribute.String("page.strategy", string(strategy)), attribute.Int("page.records", len(records)))
	logger.Debug("page extracted", "page", n, "strategy", strategy, "records", len(records))
	return records, nil
}

func (e *Engine) nextSelectors(desc source.Descriptor) []string {
	if len(desc.NextPage) > 0 {
		return desc.NextPage
	}
	return e.NextPage
}
