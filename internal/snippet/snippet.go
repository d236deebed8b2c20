// Package snippet trims rendered HTML into bounded fragments for prompts.
package snippet

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	formPolicy   = newFormPolicy()
	resultPolicy = newResultPolicy()
	blankRun     = regexp.MustCompile(`\s+`)
	emptyTag     = regexp.MustCompile(`<(div|span|p|td|li)>\s*</(div|span|p|td|li)>`)
)

func newFormPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("form", "input", "textarea", "select", "option", "button", "label", "a")
	p.AllowAttrs("name", "id", "type", "placeholder", "value", "aria-label", "for", "title", "role", "class").Globally()
	p.AllowAttrs("action", "method").OnElements("form")
	return p
}

func newResultPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("table", "thead", "tbody", "tr", "td", "th", "div", "span", "p", "a",
		"ul", "ol", "li", "h1", "h2", "h3", "h4", "h5", "b", "strong", "em", "br", "article", "section")
	p.AllowAttrs("class").Globally()
	return p
}

// Forms keeps the interactive markup of a page: forms, inputs, buttons and
// their identifying attributes.
func Forms(html string, max int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	source := html
	if err == nil {
		forms := doc.Find("form")
		if forms.Length() > 0 {
			var b strings.Builder
			forms.Each(func(_ int, s *goquery.Selection) {
				if h, err := goquery.OuterHtml(s); err == nil {
					b.WriteString(h)
				}
			})
			source = b.String()
		}
	}
	return clip(squeeze(formPolicy.Sanitize(source)), max)
}

// Results keeps the structural markup of a results page with text and class
// names only.
func Results(html string, max int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	source := html
	if err == nil {
		if body := doc.Find("body"); body.Length() > 0 {
			if h, err := body.Html(); err == nil {
				source = h
			}
		}
	}
	out := squeeze(resultPolicy.Sanitize(source))
	for {
		next := emptyTag.ReplaceAllString(out, "")
		if next == out {
			break
		}
		out = next
	}
	return clip(out, max)
}

func squeeze(s string) string {
	return strings.TrimSpace(blankRun.ReplaceAllString(s, " "))
}

func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
