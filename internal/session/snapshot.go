package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

var ErrNoScreenshot = errors.New("snapshot has no screenshot source")

// Snapshot is the rendered content of one page at one point in time.
type Snapshot struct {
	URL  string
	HTML string

	once    sync.Once
	doc     *goquery.Document
	docErr  error
	capture func(ctx context.Context) ([]byte, error)
}

func NewSnapshot(url, html string) *Snapshot {
	return &Snapshot{URL: url, HTML: html}
}

// WithScreenshot sets the function used to render the page image.
func (s *Snapshot) WithScreenshot(fn func(ctx context.Context) ([]byte, error)) *Snapshot {
	s.capture = fn
	return s
}

// Document parses the HTML once. Callers must not modify the result.
func (s *Snapshot) Document() (*goquery.Document, error) {
	s.once.Do(func() {
		s.doc, s.docErr = goquery.NewDocumentFromReader(strings.NewReader(s.HTML))
	})
	return s.doc, s.docErr
}

// Text is the visible body text, one line per block, scripts and styles
// removed.
func (s *Snapshot) Text() string {
	doc, err := s.Document()
	if err != nil {
		return ""
	}
	body := doc.Find("body").Clone()
	if body.Length() == 0 {
		body = doc.Selection.Clone()
	}
	body.Find("script, style, noscript, template").Remove()
	body.Find("br, p, div, tr, li, h1, h2, h3, h4, td, th").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	var lines []string
	for _, line := range strings.Split(body.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func (s *Snapshot) Screenshot(ctx context.Context) ([]byte, error) {
	if s.capture == nil {
		return nil, ErrNoScreenshot
	}
	return s.capture(ctx)
}
