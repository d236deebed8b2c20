package browser

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// FakeSite scripts what a FakePage sees: HTML per URL and where clicks lead.
type FakeSite struct {
	Pages map[string]string
	// Routes maps RouteKey(url, selector) to the URL a click on selector
	// (or Enter pressed in it) navigates to.
	Routes map[string]string
	// Navigate, when set, is consulted before Routes.
	Navigate   func(p *FakePage, selector string) (string, bool)
	Screenshot []byte
	GotoErr    map[string]error
	// SlowLoad lists URLs whose WaitForLoad reports a timeout.
	SlowLoad map[string]bool
}

func RouteKey(url, selector string) string {
	return url + " " + selector
}

type FakeEngine struct {
	Site     *FakeSite
	StartErr error
	mu       sync.Mutex
	Sessions []*FakeSession
}

func (f *FakeEngine) Start(opts StartOptions) (Session, error) {
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.Site == nil {
		f.Site = &FakeSite{}
	}
	s := &FakeSession{site: f.Site}
	f.mu.Lock()
	f.Sessions = append(f.Sessions, s)
	f.mu.Unlock()
	return s, nil
}

func (f *FakeEngine) Started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sessions)
}

type FakeSession struct {
	site       *FakeSite
	mu         sync.Mutex
	Pages      []*FakePage
	CloseCount int
	CloseErr   error
}

func (s *FakeSession) NewPage() (Page, error) {
	page := &FakePage{site: s.site, Fills: map[string]string{}}
	s.mu.Lock()
	s.Pages = append(s.Pages, page)
	s.mu.Unlock()
	return page, nil
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return s.CloseErr
}

func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCount > 0
}

type FakePage struct {
	site      *FakeSite
	mu        sync.Mutex
	URLValue  string
	Fills     map[string]string
	Clicks    []string
	Presses   []string
	Visits    []string
	Contents  int
	TimeoutMs int
	Closed    bool
}

func (p *FakePage) Goto(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.site.GotoErr[url]; err != nil {
		return err
	}
	p.loadLocked(url)
	return nil
}

func (p *FakePage) WaitForLoad(timeoutMs int) error {
	p.mu.Lock()
	slow := p.site.SlowLoad[p.URLValue]
	p.mu.Unlock()
	if slow {
		return fmt.Errorf("%w: load state after %dms", ErrTimeout, timeoutMs)
	}
	return nil
}

func (p *FakePage) Click(selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(selector); err != nil {
		return err
	}
	p.Clicks = append(p.Clicks, selector)
	p.followLocked(selector)
	return nil
}

func (p *FakePage) Fill(selector string, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(selector); err != nil {
		return err
	}
	p.Fills[selector] = value
	return nil
}

func (p *FakePage) Press(selector string, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(selector); err != nil {
		return err
	}
	p.Presses = append(p.Presses, selector+"="+key)
	if key == "Enter" {
		p.followLocked(selector)
	}
	return nil
}

func (p *FakePage) Count(selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countLocked(selector)
}

func (p *FakePage) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Contents++
	return p.htmlLocked(), nil
}

func (p *FakePage) Screenshot(_ bool) ([]byte, error) {
	if p.site.Screenshot == nil {
		return nil, errors.New("no screenshot")
	}
	return p.site.Screenshot, nil
}

func (p *FakePage) SetTimeout(ms int) error {
	p.mu.Lock()
	p.TimeoutMs = ms
	p.mu.Unlock()
	return nil
}

func (p *FakePage) URL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.URLValue, nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	p.Closed = true
	p.mu.Unlock()
	return nil
}

func (p *FakePage) loadLocked(url string) {
	p.URLValue = url
	p.Visits = append(p.Visits, url)
}

func (p *FakePage) followLocked(selector string) {
	if p.site.Navigate != nil {
		if target, ok := p.site.Navigate(p, selector); ok {
			p.loadLocked(target)
			return
		}
	}
	if target, ok := p.site.Routes[RouteKey(p.URLValue, selector)]; ok {
		p.loadLocked(target)
	}
}

func (p *FakePage) requireLocked(selector string) error {
	n, err := p.countLocked(selector)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

func (p *FakePage) htmlLocked() string {
	if html, ok := p.site.Pages[p.URLValue]; ok {
		return html
	}
	return "<html><head></head><body></body></html>"
}

func (p *FakePage) countLocked(selector string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.htmlLocked()))
	if err != nil {
		return 0, err
	}
	return CountStatic(doc, selector), nil
}

// Filled returns the value last typed into selector.
func (p *FakePage) Filled(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Fills[selector]
}
