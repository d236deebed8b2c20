// Package record defines candidate records, result sets and the merge rules
// that turn per-page extraction output into one deduplicated result.
package record

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type Strategy string

const (
	StrategyDOM      Strategy = "dom"
	StrategyAI       Strategy = "ai"
	StrategyPattern  Strategy = "pattern"
	StrategyOCR      Strategy = "ocr"
	StrategySentinel Strategy = "sentinel"
)

type Record struct {
	NaturalKey     string   `json:"natural_key"`
	Title          string   `json:"title"`
	Abstract       string   `json:"abstract"`
	Applicant      string   `json:"applicant"`
	Inventor       string   `json:"inventor"`
	Date           string   `json:"date"`
	SourceStrategy Strategy `json:"source_strategy"`
	SourceName     string   `json:"source_name"`
}

// NormalizeKey upper-cases a publication or application number and drops
// separators so "WO 2020/123456" and "WO2020123456" compare equal.
func NormalizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// CleanText collapses runs of whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}

func Normalize(r Record) Record {
	r.NaturalKey = NormalizeKey(r.NaturalKey)
	r.Title = CleanText(r.Title)
	r.Abstract = CleanText(r.Abstract)
	r.Applicant = CleanText(r.Applicant)
	r.Inventor = CleanText(r.Inventor)
	r.Date = CleanText(r.Date)
	return r
}

func (r Record) IsSentinel() bool {
	return r.NaturalKey == KeyNoResults || r.NaturalKey == KeyError
}

func (r Record) filled() int {
	n := 0
	for _, v := range []string{r.Title, r.Abstract, r.Applicant, r.Inventor, r.Date} {
		if v != "" {
			n++
		}
	}
	return n
}

// richer reports whether candidate carries more information than current.
func richer(candidate, current Record) bool {
	if a, b := utf8.RuneCountInString(candidate.Abstract), utf8.RuneCountInString(current.Abstract); a != b {
		return a > b
	}
	if a, b := utf8.RuneCountInString(candidate.Title), utf8.RuneCountInString(current.Title); a != b {
		return a > b
	}
	return candidate.filled() > current.filled()
}

// Dedupe normalizes records and collapses repeated natural keys, keeping the
// richest version at the position the key was first seen. Records without a
// key are dropped.
func Dedupe(records []Record) []Record {
	out := make([]Record, 0, len(records))
	index := make(map[string]int, len(records))
	for _, r := range records {
		r = Normalize(r)
		if r.NaturalKey == "" {
			continue
		}
		if i, ok := index[r.NaturalKey]; ok {
			if richer(r, out[i]) {
				out[i] = r
			}
			continue
		}
		index[r.NaturalKey] = len(out)
		out = append(out, r)
	}
	return out
}
