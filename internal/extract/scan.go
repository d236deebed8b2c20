package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/patrickjm/patsearch/internal/record"
)

// Scanner finds natural keys (publication or application numbers) in text.
type Scanner struct {
	patterns []*regexp.Regexp
}

func NewScanner(patterns []string) (*Scanner, error) {
	s := &Scanner{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("key pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	if len(s.patterns) == 0 {
		return nil, fmt.Errorf("no key patterns")
	}
	return s, nil
}

// Find returns the earliest key in text, preferring the earlier pattern on
// ties.
func (s *Scanner) Find(text string) string {
	best, at := "", -1
	for _, re := range s.patterns {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if at == -1 || loc[0] < at {
			best, at = text[loc[0]:loc[1]], loc[0]
		}
	}
	return strings.TrimSpace(best)
}

func (s *Scanner) Has(text string) bool {
	return s.Find(text) != ""
}

// matches returns every non-overlapping key location in text, left to
// right. Equal starts go to the earlier pattern.
func (s *Scanner) matches(text string) [][2]int {
	type hit struct{ start, end, pattern int }
	var hits []hit
	for i, re := range s.patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{loc[0], loc[1], i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].pattern < hits[j].pattern
	})
	var out [][2]int
	end := 0
	for _, h := range hits {
		if h.start < end {
			continue
		}
		out = append(out, [2]int{h.start, h.end})
		end = h.end
	}
	return out
}

func titleText(s string) string {
	s = strings.Trim(s, " -–:|,;")
	if len([]rune(s)) < 3 {
		return ""
	}
	return s
}

// Records scans plain text line by line. A line holding a key starts a
// record that runs until the next such line: its title is the rest of the
// key line, or the next line when that is empty, and its abstract the text
// of the whole segment. A line holding several keys, as OCR often yields
// for table rows, starts one record per key, each titled by the text up to
// the next key.
func (s *Scanner) Records(text string) []record.Record {
	var out []record.Record
	var cur *record.Record
	var body []string
	flush := func() {
		if cur == nil {
			return
		}
		if cur.Title == "" && len(body) > 0 {
			cur.Title = body[0]
			body = body[1:]
		}
		cur.Abstract = record.Truncate(record.CleanText(strings.Join(body, " ")), AbstractChars)
		out = append(out, *cur)
		cur, body = nil, nil
	}
	for _, line := range strings.Split(text, "\n") {
		line = record.CleanText(line)
		if line == "" {
			continue
		}
		locs := s.matches(line)
		if len(locs) == 0 {
			if cur != nil {
				body = append(body, line)
			}
			continue
		}
		flush()
		if len(locs) == 1 {
			key := line[locs[0][0]:locs[0][1]]
			cur = &record.Record{
				NaturalKey: strings.TrimSpace(key),
				Title:      titleText(line[:locs[0][0]] + line[locs[0][1]:]),
			}
			continue
		}
		for i, loc := range locs {
			next := len(line)
			if i+1 < len(locs) {
				next = locs[i+1][0]
			}
			cur = &record.Record{
				NaturalKey: strings.TrimSpace(line[loc[0]:loc[1]]),
				Title:      titleText(line[loc[1]:next]),
			}
			if i+1 < len(locs) {
				flush()
			}
		}
	}
	flush()
	return record.Dedupe(out)
}
