// Package discover resolves the interactive elements of a login or search
// page: first by asking the AI collaborator, then by scanning the markup.
package discover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/patrickjm/patsearch/internal/ai"
	"github.com/patrickjm/patsearch/internal/browser"
	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/locator"
	"github.com/patrickjm/patsearch/internal/session"
	"github.com/patrickjm/patsearch/internal/snippet"
)

const defaultExcerptChars = 8000

type Keywords struct {
	Login    []string
	Password []string
	Query    []string
	Submit   []string
}

type Discoverer struct {
	// AI is optional; without it only the heuristic scan runs.
	AI           ai.Completer
	Keywords     Keywords
	ExcerptChars int
	Logger       *slog.Logger
}

// Discover never fails. Fields neither tier can resolve are taken from
// fallback, and an absent required field is left for the interaction step
// to report.
func (d *Discoverer) Discover(ctx context.Context, snap *session.Snapshot, kind locator.Kind, fallback locator.Set) locator.Set {
	logger := d.logger().With("page_kind", string(kind))
	doc, err := snap.Document()
	if err != nil {
		logger.Warn("unparseable page, using last known locators", "error", err)
		return fallback
	}

	if d.AI != nil {
		set, err := d.infer(ctx, snap, doc, kind)
		if err == nil {
			logger.Debug("locators inferred by ai", "locators", set)
			return set
		}
		logger.Info("ai locators rejected, scanning markup", "error", err)
	}

	set := d.scan(doc, kind)
	if set.IsZero() {
		logger.Info("no locators found on page, using last known locators")
		return fallback
	}
	for field, value := range set.Required(kind) {
		if value == "" {
			logger.Debug("field not found, using last known locator", "field", field)
		}
	}
	return set.Fill(fallback)
}

func (d *Discoverer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

type inferred struct {
	LoginField     *string `json:"login_field"`
	PasswordField  *string `json:"password_field"`
	QueryField     *string `json:"query_field"`
	SubmitSelector *string `json:"submit_selector"`
}

func (d *Discoverer) infer(ctx context.Context, snap *session.Snapshot, doc *goquery.Document, kind locator.Kind) (locator.Set, error) {
	limit := d.ExcerptChars
	if limit <= 0 {
		limit = defaultExcerptChars
	}
	excerpt := snippet.Forms(snap.HTML, limit)
	if excerpt == "" {
		return locator.Set{}, errors.New("page has no interactive markup")
	}
	raw, err := d.AI.Complete(ctx, buildPrompt(kind, excerpt))
	if err != nil {
		return locator.Set{}, err
	}
	var reply inferred
	if err := ai.Decode(raw, &reply); err != nil {
		return locator.Set{}, err
	}
	return validate(doc, kind, reply)
}

func buildPrompt(kind locator.Kind, excerpt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following HTML comes from a patent office %s page.\n", kind)
	b.WriteString("Identify the CSS selectors of its interactive elements and answer with a JSON object with exactly these keys:\n")
	b.WriteString(`{"login_field": "...", "password_field": "...", "query_field": "...", "submit_selector": "..."}` + "\n")
	b.WriteString("Use an empty string for an element that is not on the page. ")
	if kind == locator.KindLogin {
		b.WriteString("login_field is the username input, password_field the password input, submit_selector the button that signs in.\n")
	} else {
		b.WriteString("query_field is the free text search input, submit_selector the button that runs the search.\n")
	}
	b.WriteString("HTML:\n")
	b.WriteString(excerpt)
	return b.String()
}

func validate(doc *goquery.Document, kind locator.Kind, reply inferred) (locator.Set, error) {
	if reply.LoginField == nil || reply.PasswordField == nil || reply.QueryField == nil || reply.SubmitSelector == nil {
		return locator.Set{}, fmt.Errorf("%w: reply lacks one of the four locator keys", failure.ErrCollaboratorUnavailable)
	}
	set := locator.Set{
		LoginField:     resolve(doc, *reply.LoginField),
		PasswordField:  resolve(doc, *reply.PasswordField),
		QueryField:     resolve(doc, *reply.QueryField),
		SubmitSelector: resolve(doc, *reply.SubmitSelector),
	}
	for field, value := range set.Required(kind) {
		if value == "" {
			return locator.Set{}, fmt.Errorf("%w: %s missing or not on page", failure.ErrCollaboratorUnavailable, field)
		}
	}
	return set, nil
}

var bareName = regexp.MustCompile(`^[A-Za-z_][\w\-:.]*$`)

// resolve turns a reply value into a selector that matches the document,
// or "" if none does. Bare names are tried as name and id attributes.
func resolve(doc *goquery.Document, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	candidates := []string{value}
	if bareName.MatchString(value) {
		candidates = []string{
			fmt.Sprintf(`[name="%s"]`, value),
			fmt.Sprintf(`[id="%s"]`, value),
			value,
		}
	}
	for _, sel := range candidates {
		if browser.CountStatic(doc, sel) > 0 {
			return sel
		}
	}
	return ""
}
