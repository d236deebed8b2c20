package source

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/patrickjm/patsearch/internal/locator"
)

const (
	DefaultMaxPages    = 5
	DefaultStepTimeout = 30 * time.Second
	QueryPlaceholder   = "{query}"
)

// Descriptor identifies one target site. It is passed by value and not
// modified while a search runs.
type Descriptor struct {
	Name          string                       `json:"name"`
	SearchURL     string                       `json:"search_url"`
	LoginURL      string                       `json:"login_url,omitempty"`
	QueryURL      string                       `json:"query_url,omitempty"`
	RequiresAuth  bool                         `json:"requires_auth"`
	CredentialRef string                       `json:"credential_ref,omitempty"`
	MaxPages      int                          `json:"max_pages"`
	StepTimeoutMs int64                        `json:"step_timeout_ms"`
	SettleMs      int64                        `json:"settle_ms,omitempty"`
	NextPage      []string                     `json:"next_page,omitempty"`
	Locators      map[locator.Kind]locator.Set `json:"locators,omitempty"`
	CreatedAt     time.Time                    `json:"created_at"`
	LastUsed      time.Time                    `json:"last_used"`

	// Credentials are supplied by the caller for one search and never stored.
	Credentials *Credentials `json:"-"`
}

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s/****", c.Username)
}

// ResolveEnv reads <REF>_USERNAME and <REF>_PASSWORD.
func ResolveEnv(ref string) (*Credentials, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return nil, errors.New("credential reference is empty")
	}
	user := strings.TrimSpace(os.Getenv(ref + "_USERNAME"))
	pass := os.Getenv(ref + "_PASSWORD")
	if user == "" || pass == "" {
		return nil, fmt.Errorf("credentials not configured: set %s_USERNAME and %s_PASSWORD", ref, ref)
	}
	return &Credentials{Username: user, Password: pass}, nil
}

func (d Descriptor) Validate() error {
	if sanitizeName(d.Name) == "" {
		return errors.New("source name required")
	}
	if err := checkURL("search_url", d.SearchURL); err != nil {
		return err
	}
	if d.LoginURL != "" {
		if err := checkURL("login_url", d.LoginURL); err != nil {
			return err
		}
	}
	if d.QueryURL != "" {
		if !strings.Contains(d.QueryURL, QueryPlaceholder) {
			return fmt.Errorf("query_url must contain %s", QueryPlaceholder)
		}
		if err := checkURL("query_url", strings.ReplaceAll(d.QueryURL, QueryPlaceholder, "x")); err != nil {
			return err
		}
	}
	if d.MaxPages < 0 {
		return errors.New("max_pages must not be negative")
	}
	if d.StepTimeoutMs < 0 || d.SettleMs < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q is not an absolute http(s) url", field, raw)
	}
	return nil
}

func (d Descriptor) PageLimit() int {
	if d.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return d.MaxPages
}

func (d Descriptor) StepTimeout() time.Duration {
	if d.StepTimeoutMs <= 0 {
		return DefaultStepTimeout
	}
	return time.Duration(d.StepTimeoutMs) * time.Millisecond
}

func (d Descriptor) Settle() time.Duration {
	return time.Duration(d.SettleMs) * time.Millisecond
}

func (d Descriptor) LoginEntry() string {
	if d.LoginURL != "" {
		return d.LoginURL
	}
	return d.SearchURL
}

// DirectQuery reports whether results can be opened by URL without a form.
func (d Descriptor) DirectQuery() bool {
	return d.QueryURL != ""
}

func (d Descriptor) QueryEntry(query string) string {
	return strings.ReplaceAll(d.QueryURL, QueryPlaceholder, url.QueryEscape(query))
}

// Fallback returns the last-known-good locators for a page kind.
func (d Descriptor) Fallback(kind locator.Kind) locator.Set {
	return d.Locators[kind]
}

func (d Descriptor) WithCredentials(c *Credentials) Descriptor {
	d.Credentials = c
	return d
}
