package browser

import "errors"

// ErrTimeout marks a browser operation that ran past its timeout.
var ErrTimeout = errors.New("browser timeout")

type StartOptions struct {
	Browser   string
	Channel   string
	Headless  bool
	UserAgent string
	Width     int
	Height    int
}

type Engine interface {
	Start(opts StartOptions) (Session, error)
}

type Session interface {
	NewPage() (Page, error)
	Close() error
}

type Page interface {
	Goto(url string) error
	WaitForLoad(timeoutMs int) error
	Click(selector string) error
	Fill(selector string, value string) error
	Press(selector string, key string) error
	Count(selector string) (int, error)
	Content() (string, error)
	Screenshot(fullPage bool) ([]byte, error)
	SetTimeout(ms int) error
	URL() (string, error)
	Close() error
}
