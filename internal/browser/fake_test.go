package browser

import (
	"testing"
)

func TestFakePageFollowsRoutes(t *testing.T) {
	site := &FakeSite{
		Pages: map[string]string{
			"https://example.test/":        `<form><input name="q"><button id="go">Search</button></form>`,
			"https://example.test/results": `<table><tr><td>WO2020123456</td></tr></table>`,
		},
		Routes: map[string]string{
			RouteKey("https://example.test/", "#go"): "https://example.test/results",
		},
	}
	engine := &FakeEngine{Site: site}
	session, err := engine.Start(StartOptions{Headless: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	page, err := session.NewPage()
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	if err := page.Goto("https://example.test/"); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := page.Fill("input[name=q]", "ibuprofen"); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := page.Fill("#missing", "x"); err == nil {
		t.Fatalf("expected fill on missing element to fail")
	}
	if n, _ := page.Count("text=Search"); n != 1 {
		t.Fatalf("expected text selector to match, got %d", n)
	}
	if err := page.Click("#go"); err != nil {
		t.Fatalf("click: %v", err)
	}
	url, _ := page.URL()
	if url != "https://example.test/results" {
		t.Fatalf("expected results url, got %s", url)
	}
	fp := page.(*FakePage)
	if fp.Filled("input[name=q]") != "ibuprofen" {
		t.Fatalf("fill not recorded")
	}
	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !engine.Sessions[0].Closed() {
		t.Fatalf("expected session closed")
	}
}

func TestClosestText(t *testing.T) {
	got := closestText("Nxt page", []string{"Previous", "Next page", "Home"})
	if got != "Next page" {
		t.Fatalf("expected Next page, got %q", got)
	}
	if closestText("  ", []string{"a"}) != "" {
		t.Fatalf("expected empty suggestion for blank query")
	}
}
