package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/session"
)

// Known result row shapes, most specific first.
var rowShapes = []string{
	"table.resultTable tr",
	`[class*="result"] tbody tr`,
	"table tr",
	`li[class*="result"], div[class*="result-item"], div[class*="resultItem"], div[class*="search-result"]`,
	`[class*="result"] li`,
	"article",
}

// Semantic class fragments per field, matched case-insensitively.
var fieldClasses = map[string][]string{
	"key":       {"pubnum", "publication-number", "publicationnumber", "numero", "number", "pedido"},
	"title":     {"title", "titulo"},
	"abstract":  {"abstract", "resumo", "summary"},
	"applicant": {"applicant", "depositante", "requerente", "titular"},
	"inventor":  {"inventor"},
	"date":      {"date", "data", "deposito"},
}

var datePattern = regexp.MustCompile(`\b(?:\d{2}[/.]\d{2}[/.]\d{4}|\d{4}-\d{2}-\d{2})\b`)

// DOM reads records from repeated result rows.
type DOM struct {
	Scanner *Scanner
}

func (d *DOM) Name() record.Strategy { return record.StrategyDOM }

func (d *DOM) Extract(_ context.Context, snap *session.Snapshot) ([]record.Record, error) {
	doc, err := snap.Document()
	if err != nil {
		return nil, err
	}
	for _, shape := range rowShapes {
		var out []record.Record
		doc.Find(shape).Each(func(_ int, row *goquery.Selection) {
			if row.Find(shape).Length() > 0 {
				// layout wrapper around nested rows
				return
			}
			if r, ok := d.row(row); ok {
				out = append(out, r)
			}
		})
		if len(out) > 0 {
			return record.Dedupe(out), nil
		}
	}
	return nil, nil
}

func (d *DOM) row(row *goquery.Selection) (record.Record, bool) {
	lines := blockLines(row)
	text := strings.Join(lines, " ")
	key := d.Scanner.Find(byClass(row, "key"))
	if key == "" {
		key = d.Scanner.Find(text)
	}
	if key == "" {
		return record.Record{}, false
	}
	r := record.Record{
		NaturalKey: key,
		Title:      byClass(row, "title"),
		Abstract:   byClass(row, "abstract"),
		Applicant:  byClass(row, "applicant"),
		Inventor:   byClass(row, "inventor"),
		Date:       byClass(row, "date"),
	}
	if cells := row.ChildrenFiltered("td"); cells.Length() >= 2 {
		d.positional(&r, cells)
	}
	if r.Title == "" {
		r.Title = firstLineWithout(lines, key)
	}
	if r.Date == "" {
		r.Date = datePattern.FindString(text)
	}
	if r.Abstract == "" {
		r.Abstract = record.Truncate(record.CleanText(text), AbstractChars)
	}
	return r, true
}

// positional fills gaps from table cells: the key cell, the first date-like
// cell, and the longest remaining cell as title.
func (d *DOM) positional(r *record.Record, cells *goquery.Selection) {
	longest := ""
	cells.Each(func(_ int, c *goquery.Selection) {
		t := record.CleanText(c.Text())
		switch {
		case t == "":
		case d.Scanner.Has(t) && record.NormalizeKey(d.Scanner.Find(t)) == record.NormalizeKey(r.NaturalKey) && len(t) <= len(r.NaturalKey)+4:
		case datePattern.MatchString(t) && len(t) <= 12:
			if r.Date == "" {
				r.Date = t
			}
		default:
			if len(t) > len(longest) {
				longest = t
			}
		}
	})
	if r.Title == "" {
		r.Title = longest
	}
}

func byClass(row *goquery.Selection, field string) string {
	var found string
	row.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		class = strings.ToLower(class)
		for _, frag := range fieldClasses[field] {
			if strings.Contains(class, frag) {
				found = record.CleanText(s.Text())
				return found == ""
			}
		}
		return true
	})
	return found
}

func firstLineWithout(lines []string, key string) string {
	for _, line := range lines {
		rest := strings.Trim(strings.Replace(line, key, "", 1), " -–:|,;")
		if len([]rune(rest)) >= 3 && !datePattern.MatchString(rest) {
			return rest
		}
	}
	return ""
}

// blockLines renders a selection's text with one line per block or cell.
func blockLines(sel *goquery.Selection) []string {
	clone := sel.Clone()
	clone.Find("script, style, noscript").Remove()
	clone.Find("br, p, div, td, th, li, h1, h2, h3, h4, h5").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	var lines []string
	for _, line := range strings.Split(clone.Text(), "\n") {
		if line = record.CleanText(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
