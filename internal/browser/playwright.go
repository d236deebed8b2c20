package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/playwright-community/playwright-go"
)

type PlaywrightEngine struct{}

func (p PlaywrightEngine) Start(opts StartOptions) (Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}
	bt, err := browserType(pw, opts.Browser)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
		},
	}
	if opts.Channel != "" {
		launchOpts.Channel = playwright.String(opts.Channel)
	}
	browser, err := bt.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Width > 0 && opts.Height > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.Width, Height: opts.Height}
	}
	ctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, err
	}
	return &playwrightSession{pw: pw, browser: browser, ctx: ctx}, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	ctx     playwright.BrowserContext
}

func (s *playwrightSession) NewPage() (Page, error) {
	page, err := s.ctx.NewPage()
	if err != nil {
		return nil, err
	}
	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) Close() error {
	var errs []error
	if s.ctx != nil {
		errs = append(errs, s.ctx.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.pw != nil {
		errs = append(errs, s.pw.Stop())
	}
	return errors.Join(errs...)
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded})
	return mapErr(err)
}

func (p *playwrightPage) WaitForLoad(timeoutMs int) error {
	opts := playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateDomcontentloaded}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(float64(timeoutMs))
	}
	return mapErr(p.page.WaitForLoadState(opts))
}

func (p *playwrightPage) Click(selector string) error {
	if strings.HasPrefix(selector, "text=") {
		return p.clickByText(strings.TrimPrefix(selector, "text="))
	}
	return mapErr(p.page.Locator(selector).First().Click())
}

func (p *playwrightPage) Fill(selector string, value string) error {
	return mapErr(p.page.Locator(selector).First().Fill(value))
}

func (p *playwrightPage) Press(selector string, key string) error {
	return mapErr(p.page.Locator(selector).First().Press(key))
}

func (p *playwrightPage) Count(selector string) (int, error) {
	n, err := p.page.Locator(selector).Count()
	return n, mapErr(err)
}

func (p *playwrightPage) Content() (string, error) {
	html, err := p.page.Content()
	return html, mapErr(err)
}

func (p *playwrightPage) Screenshot(fullPage bool) ([]byte, error) {
	b, err := p.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(fullPage)})
	return b, mapErr(err)
}

func (p *playwrightPage) SetTimeout(ms int) error {
	if ms <= 0 {
		return nil
	}
	p.page.SetDefaultTimeout(float64(ms))
	p.page.SetDefaultNavigationTimeout(float64(ms))
	return nil
}

func (p *playwrightPage) URL() (string, error) {
	return p.page.URL(), nil
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

func (p *playwrightPage) clickByText(text string) error {
	if err := p.page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)}).First().Click(); err == nil {
		return nil
	}
	if err := p.page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(false)}).First().Click(); err == nil {
		return nil
	}
	escaped := strings.ReplaceAll(text, "\"", "\\\"")
	selectors := []string{
		fmt.Sprintf("a:has-text(\"%s\")", escaped),
		fmt.Sprintf("button:has-text(\"%s\")", escaped),
		fmt.Sprintf("[role=button]:has-text(\"%s\")", escaped),
		fmt.Sprintf("input[value=\"%s\"]", escaped),
	}
	for _, sel := range selectors {
		if err := p.page.Locator(sel).First().Click(); err == nil {
			return nil
		}
	}
	suggestion, sErr := p.suggestText(text)
	if sErr == nil && suggestion != "" {
		return fmt.Errorf("no match for text=%q. did you mean %q?", text, suggestion)
	}
	return fmt.Errorf("no match for text=%q", text)
}

func (p *playwrightPage) suggestText(text string) (string, error) {
	value, err := p.page.Evaluate(`() => {
  const candidates = new Set();
  const pushText = (t) => {
    if (!t) return;
    const v = String(t).trim();
    if (v) candidates.add(v);
  };
  document.querySelectorAll("a,button,[role=button],input[type=submit],input[type=button],label,[aria-label]").forEach(el => {
    pushText(el.innerText);
    if (el.getAttribute) pushText(el.getAttribute("aria-label"));
    if (el.value) pushText(el.value);
  });
  return Array.from(candidates).slice(0, 200);
}`)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	var candidates []string
	if err := json.Unmarshal(b, &candidates); err != nil {
		return "", err
	}
	return closestText(text, candidates), nil
}

// closestText picks the candidate with the smallest edit distance to text.
func closestText(text string, candidates []string) string {
	query := normalizeText(text)
	if query == "" {
		return ""
	}
	best := ""
	bestScore := -1
	for _, candidate := range candidates {
		normalized := normalizeText(candidate)
		if normalized == "" {
			continue
		}
		score := matchr.Levenshtein(query, normalized)
		if bestScore == -1 || score < bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "chromium", "":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, errors.New("unknown browser: " + name)
	}
}
