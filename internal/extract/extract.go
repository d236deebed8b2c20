// Package extract turns one rendered results page into records by trying an
// ordered list of strategies until one of them finds something.
package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/patrickjm/patsearch/internal/ai"
	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/ocr"
	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/session"
)

// AbstractChars caps abstracts built from raw page text.
const AbstractChars = 600

type Strategy interface {
	Name() record.Strategy
	// Extract returns the records found on the page. An error means the
	// strategy could not run and is treated like zero records.
	Extract(ctx context.Context, snap *session.Snapshot) ([]record.Record, error)
}

type Options struct {
	KeyPatterns  []string
	AI           ai.Completer
	SnippetChars int
	OCR          ocr.Recognizer
	MinTextChars int
	Logger       *slog.Logger
}

// NewChain builds the DOM, AI, pattern, OCR chain. Nil collaborators make
// their strategy a no-op.
func NewChain(opts Options) (*Chain, error) {
	scanner, err := NewScanner(opts.KeyPatterns)
	if err != nil {
		return nil, err
	}
	return &Chain{
		Strategies: []Strategy{
			&DOM{Scanner: scanner},
			&AI{Completer: opts.AI, SnippetChars: opts.SnippetChars},
			&Pattern{Scanner: scanner},
			&OCR{Recognizer: opts.OCR, Scanner: scanner, MinTextChars: opts.MinTextChars},
		},
		Logger: opts.Logger,
	}, nil
}

type Chain struct {
	Strategies []Strategy
	Logger     *slog.Logger
}

// Extract runs the strategies in order and returns the output of the first
// one that yields records, tagged and deduplicated. When none does it
// returns failure.ErrExtractionEmpty.
func (c *Chain) Extract(ctx context.Context, snap *session.Snapshot) ([]record.Record, record.Strategy, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		records, err := s.Extract(ctx, snap)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			logger.Warn("extraction strategy failed", "strategy", s.Name(), "url", snap.URL, "error", err)
			continue
		}
		records = tag(records, s.Name())
		if len(records) > 0 {
			logger.Debug("extracted", "strategy", s.Name(), "records", len(records))
			return records, s.Name(), nil
		}
		logger.Debug("strategy found nothing", "strategy", s.Name())
	}
	return nil, "", fmt.Errorf("%w: %s", failure.ErrExtractionEmpty, snap.URL)
}

func tag(records []record.Record, name record.Strategy) []record.Record {
	for i := range records {
		records[i].SourceStrategy = name
	}
	return record.Dedupe(records)
}
