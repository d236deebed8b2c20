package extract

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/patrickjm/patsearch/internal/ai"
	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/session"
	"github.com/patrickjm/patsearch/internal/snippet"
)

const defaultSnippetChars = 10000

// AI asks the collaborator to read records out of a trimmed HTML snippet.
type AI struct {
	Completer    ai.Completer
	SnippetChars int
}

func (a *AI) Name() record.Strategy { return record.StrategyAI }

type aiRecord struct {
	NaturalKey string `json:"natural_key"`
	Title      string `json:"title"`
	Abstract   string `json:"abstract"`
	Applicant  string `json:"applicant"`
	Inventor   string `json:"inventor"`
	Date       string `json:"date"`
}

func (a *AI) Extract(ctx context.Context, snap *session.Snapshot) ([]record.Record, error) {
	if a.Completer == nil {
		return nil, nil
	}
	limit := a.SnippetChars
	if limit <= 0 {
		limit = defaultSnippetChars
	}
	html := snippet.Results(snap.HTML, limit)
	if html == "" {
		return nil, nil
	}
	raw, err := a.Completer.Complete(ctx, buildPrompt(html))
	if err != nil {
		return nil, err
	}
	items, err := decodeRecords(raw)
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(items))
	for _, it := range items {
		if !plausibleKey(it.NaturalKey) {
			continue
		}
		out = append(out, record.Record{
			NaturalKey: it.NaturalKey,
			Title:      it.Title,
			Abstract:   record.Truncate(it.Abstract, AbstractChars*2),
			Applicant:  it.Applicant,
			Inventor:   it.Inventor,
			Date:       it.Date,
		})
	}
	return record.Dedupe(out), nil
}

func buildPrompt(html string) string {
	var b strings.Builder
	b.WriteString("Extract every patent listed in the following search results HTML.\n")
	b.WriteString("Answer with a JSON array. Each element must be an object with the keys ")
	b.WriteString(`"natural_key" (publication or application number), "title", "abstract", "applicant", "inventor" and "date". `)
	b.WriteString("Use an empty string for missing values. Answer with [] if there are no patents.\n")
	b.WriteString("HTML:\n")
	b.WriteString(html)
	return b.String()
}

// decodeRecords accepts a bare array or an object wrapping one. Elements
// that are not objects are skipped; field values are coerced to text.
func decodeRecords(raw string) ([]aiRecord, error) {
	var v any
	if err := ai.Decode(raw, &v); err != nil {
		return nil, err
	}
	if obj, ok := v.(map[string]any); ok {
		v = listField(obj)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: reply is not a list of records", failure.ErrCollaboratorUnavailable)
	}
	items := make([]aiRecord, 0, len(arr))
	for _, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, aiRecord{
			NaturalKey: text(m["natural_key"]),
			Title:      text(m["title"]),
			Abstract:   text(m["abstract"]),
			Applicant:  text(m["applicant"]),
			Inventor:   text(m["inventor"]),
			Date:       text(m["date"]),
		})
	}
	return items, nil
}

// listField picks the wrapped array: a well-known name first, then the
// lexically first array-valued key.
func listField(obj map[string]any) any {
	for _, name := range []string{"records", "patents", "results"} {
		if arr, ok := obj[name].([]any); ok {
			return arr
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if arr, ok := obj[k].([]any); ok {
			return arr
		}
	}
	return nil
}

// text flattens a decoded JSON value. Lists are joined with "; ".
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, el := range x {
			if s := text(el); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		for _, name := range []string{"name", "value", "text"} {
			if s := text(x[name]); s != "" {
				return s
			}
		}
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func plausibleKey(key string) bool {
	k := record.NormalizeKey(key)
	return len(k) >= 4 && strings.ContainsAny(k, "0123456789")
}
