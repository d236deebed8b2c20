package discover

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"

	"github.com/patrickjm/patsearch/internal/browser"
	"github.com/patrickjm/patsearch/internal/locator"
)

// Tokens this close to a keyword count as a match ("usuário" vs "usuario").
const similarityThreshold = 0.9

var (
	cssIdent   = regexp.MustCompile(`^[A-Za-z][\w-]*$`)
	tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

type candidate struct {
	sel    *goquery.Selection
	tokens []string
	form   *goquery.Selection
}

func (d *Discoverer) scan(doc *goquery.Document, kind locator.Kind) locator.Set {
	fields := collect(doc, `input, textarea`, func(s *goquery.Selection) bool {
		switch inputType(s) {
		case "hidden", "submit", "button", "image", "checkbox", "radio", "reset", "file":
			return false
		}
		return true
	})
	buttons := collect(doc, `button, input[type="submit"], input[type="image"], input[type="button"], [role="button"]`, nil)

	var set locator.Set
	var anchor *candidate
	switch kind {
	case locator.KindLogin:
		var password *candidate
		for i := range fields {
			if inputType(fields[i].sel) == "password" {
				password = &fields[i]
				break
			}
		}
		if password == nil {
			password = best(fields, d.Keywords.Password, nil)
		}
		login := best(fields, d.Keywords.Login, func(c *candidate) bool {
			return password == nil || c.sel.Get(0) != password.sel.Get(0)
		})
		if login == nil && password != nil {
			login = textBefore(fields, password)
		}
		set.LoginField = selectorFor(doc, login)
		set.PasswordField = selectorFor(doc, password)
		anchor = password
		if anchor == nil {
			anchor = login
		}
	default:
		query := best(fields, d.Keywords.Query, func(c *candidate) bool {
			return inputType(c.sel) != "password"
		})
		if query == nil {
			query = onlySearchBox(fields)
		}
		set.QueryField = selectorFor(doc, query)
		anchor = query
	}

	submit := best(buttons, d.Keywords.Submit, sameForm(anchor))
	if submit == nil {
		submit = firstSubmit(buttons, sameForm(anchor))
	}
	set.SubmitSelector = selectorFor(doc, submit)
	return set
}

func collect(doc *goquery.Document, selector string, keep func(*goquery.Selection) bool) []candidate {
	var out []candidate
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if keep != nil && !keep(s) {
			return
		}
		out = append(out, candidate{sel: s, tokens: tokensOf(s), form: s.Closest("form")})
	})
	return out
}

func tokensOf(s *goquery.Selection) []string {
	var parts []string
	for _, attr := range []string{"name", "id", "placeholder", "aria-label", "title", "value", "class"} {
		if v, ok := s.Attr(attr); ok {
			parts = append(parts, v)
		}
	}
	if t := strings.TrimSpace(s.Text()); t != "" {
		parts = append(parts, t)
	}
	if id, ok := s.Attr("id"); ok && id != "" {
		label := s.Closest("html").Find("label").FilterFunction(func(_ int, l *goquery.Selection) bool {
			f, _ := l.Attr("for")
			return f == id
		})
		parts = append(parts, label.Text())
	}
	parts = append(parts, s.Closest("label").Text())
	var tokens []string
	for _, p := range parts {
		for _, tok := range tokenSplit.Split(strings.ToLower(p), -1) {
			if tok != "" {
				tokens = append(tokens, tok)
			}
		}
	}
	return tokens
}

// score is 2 for a substring keyword hit, the Jaro-Winkler similarity for
// near misses, and 0 otherwise.
func score(c candidate, keywords []string) float64 {
	bestScore := 0.0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, tok := range c.tokens {
			if strings.Contains(tok, kw) {
				return 2
			}
			if sim := matchr.JaroWinkler(tok, kw, false); sim >= similarityThreshold && sim > bestScore {
				bestScore = sim
			}
		}
	}
	return bestScore
}

func best(cands []candidate, keywords []string, keep func(*candidate) bool) *candidate {
	var winner *candidate
	top := 0.0
	for i := range cands {
		c := &cands[i]
		if keep != nil && !keep(c) {
			continue
		}
		if s := score(*c, keywords); s > top {
			top = s
			winner = c
		}
	}
	return winner
}

// textBefore picks the last text input preceding the password field in the
// same form.
func textBefore(fields []candidate, password *candidate) *candidate {
	var prev *candidate
	for i := range fields {
		c := &fields[i]
		if c.sel.Get(0) == password.sel.Get(0) {
			return prev
		}
		switch inputType(c.sel) {
		case "text", "email", "":
			if sameForm(password)(c) {
				prev = c
			}
		}
	}
	return nil
}

func onlySearchBox(fields []candidate) *candidate {
	var text []*candidate
	for i := range fields {
		c := &fields[i]
		switch inputType(c.sel) {
		case "search":
			return c
		case "text", "":
			text = append(text, c)
		}
	}
	if len(text) == 1 {
		return text[0]
	}
	return nil
}

func firstSubmit(buttons []candidate, keep func(*candidate) bool) *candidate {
	for i := range buttons {
		c := &buttons[i]
		if keep != nil && !keep(c) {
			continue
		}
		t := inputType(c.sel)
		if t == "submit" || (goquery.NodeName(c.sel) == "button" && t != "button" && t != "reset") {
			return c
		}
	}
	return nil
}

func sameForm(anchor *candidate) func(*candidate) bool {
	return func(c *candidate) bool {
		if anchor == nil || anchor.form.Length() == 0 {
			return true
		}
		return c.form.Length() > 0 && c.form.Get(0) == anchor.form.Get(0)
	}
}

func inputType(s *goquery.Selection) string {
	t, _ := s.Attr("type")
	return strings.ToLower(strings.TrimSpace(t))
}

// selectorFor builds the most specific selector that still names the
// element, preferring id, then name, then type or label text.
func selectorFor(doc *goquery.Document, c *candidate) string {
	if c == nil {
		return ""
	}
	tag := goquery.NodeName(c.sel)
	var options []string
	if id, ok := c.sel.Attr("id"); ok && id != "" {
		if cssIdent.MatchString(id) {
			options = append(options, "#"+id)
		}
		options = append(options, fmt.Sprintf(`%s[id="%s"]`, tag, id))
	}
	if name, ok := c.sel.Attr("name"); ok && name != "" {
		options = append(options, fmt.Sprintf(`%s[name="%s"]`, tag, name))
	}
	if tag == "input" {
		if v, ok := c.sel.Attr("value"); ok && v != "" {
			options = append(options, fmt.Sprintf(`input[type="%s"][value="%s"]`, inputType(c.sel), v))
		}
		if t := inputType(c.sel); t != "" {
			options = append(options, fmt.Sprintf(`input[type="%s"]`, t))
		}
	}
	if text := strings.TrimSpace(c.sel.Text()); text != "" && tag != "input" && tag != "textarea" {
		options = append(options, "text="+strings.Join(strings.Fields(text), " "))
	}
	options = append(options, tag)
	for _, sel := range options {
		if browser.CountStatic(doc, sel) == 1 {
			return sel
		}
	}
	// Ambiguous: the page layer acts on the first match.
	for _, sel := range options {
		if browser.CountStatic(doc, sel) > 0 {
			return sel
		}
	}
	return ""
}
