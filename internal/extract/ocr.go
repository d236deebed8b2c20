package extract

import (
	"context"
	"fmt"

	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/ocr"
	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/session"
)

const defaultMinTextChars = 200

// OCR reads a full-page screenshot when the page looks rendered into
// something the DOM cannot see.
type OCR struct {
	Recognizer   ocr.Recognizer
	Scanner      *Scanner
	MinTextChars int
}

func (o *OCR) Name() record.Strategy { return record.StrategyOCR }

func (o *OCR) Extract(ctx context.Context, snap *session.Snapshot) ([]record.Record, error) {
	if o.Recognizer == nil || !o.suspect(snap) {
		return nil, nil
	}
	img, err := snap.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot: %v", failure.ErrCollaboratorUnavailable, err)
	}
	text, err := o.Recognizer.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}
	return o.Scanner.Records(text), nil
}

// suspect reports whether the content is likely drawn by scripts or
// embedded viewers: canvas, embeds, or almost no visible text.
func (o *OCR) suspect(snap *session.Snapshot) bool {
	doc, err := snap.Document()
	if err != nil {
		return true
	}
	if doc.Find("canvas, embed, object, iframe").Length() > 0 {
		return true
	}
	min := o.MinTextChars
	if min <= 0 {
		min = defaultMinTextChars
	}
	return len([]rune(snap.Text())) < min
}
