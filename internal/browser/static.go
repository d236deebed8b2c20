package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CountStatic counts the elements of a parsed document matched by a page
// selector, including the text= form understood by Page.Click.
func CountStatic(doc *goquery.Document, selector string) int {
	if strings.HasPrefix(selector, "text=") {
		text := normalizeText(strings.TrimPrefix(selector, "text="))
		if text == "" {
			return 0
		}
		return doc.Find(`a, button, [role=button], label, span, input[type="submit"], input[type="button"]`).FilterFunction(func(_ int, s *goquery.Selection) bool {
			label := s.Text()
			if v, ok := s.Attr("value"); ok && goquery.NodeName(s) == "input" {
				label = v
			}
			return strings.Contains(normalizeText(label), text)
		}).Length()
	}
	return doc.Find(selector).Length()
}
