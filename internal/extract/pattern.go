package extract

import (
	"context"

	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/session"
)

// Pattern scans the page's visible text for key-shaped strings.
type Pattern struct {
	Scanner *Scanner
}

func (p *Pattern) Name() record.Strategy { return record.StrategyPattern }

func (p *Pattern) Extract(_ context.Context, snap *session.Snapshot) ([]record.Record, error) {
	return p.Scanner.Records(snap.Text()), nil
}
