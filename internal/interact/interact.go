// Package interact fills and submits the login and search forms of a page
// using discovered locators.
package interact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/patrickjm/patsearch/internal/browser"
	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/locator"
	"github.com/patrickjm/patsearch/internal/session"
	"github.com/patrickjm/patsearch/internal/source"
)

type AuthResult string

const (
	AuthSuccess           AuthResult = "SUCCESS"
	AuthFailedCredentials AuthResult = "FAILED_CREDENTIALS"
	AuthSkipped           AuthResult = "SKIPPED"
)

type SubmissionResult string

const (
	SubmitSuccess       SubmissionResult = "SUCCESS"
	SubmitFieldNotFound SubmissionResult = "FIELD_NOT_FOUND"
	SubmitNotFound      SubmissionResult = "SUBMIT_NOT_FOUND"
)

// DefaultRejectionMarkers are page texts that mean the site refused a login.
var DefaultRejectionMarkers = []string{
	"senha inválida",
	"senha incorreta",
	"usuário ou senha",
	"login inválido",
	"invalid password",
	"invalid username",
	"incorrect password",
	"login failed",
}

type Driver struct {
	RejectionMarkers []string
	Logger           *slog.Logger
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Authenticate signs in with creds. A rejected login returns
// AuthFailedCredentials together with failure.ErrAuthenticationFailed. A
// missing form field is reported as failure.ErrLocatorNotFound with an
// empty result.
func (d *Driver) Authenticate(ctx context.Context, h *session.Handle, set locator.Set, creds *source.Credentials) (AuthResult, error) {
	if set.LoginField == "" {
		return AuthSkipped, nil
	}
	if creds == nil || creds.Username == "" || creds.Password == "" {
		return AuthFailedCredentials, fmt.Errorf("%w: no credentials supplied", failure.ErrAuthenticationFailed)
	}
	if set.PasswordField == "" {
		return "", fmt.Errorf("%w: password field", failure.ErrLocatorNotFound)
	}
	for _, sel := range []string{set.LoginField, set.PasswordField} {
		if ok, err := present(ctx, h, sel); err != nil {
			return "", err
		} else if !ok {
			return "", fmt.Errorf("%w: %s", failure.ErrLocatorNotFound, sel)
		}
	}

	if err := h.Fill(ctx, set.LoginField, creds.Username); err != nil {
		return "", fmt.Errorf("fill login: %w", err)
	}
	if err := h.Fill(ctx, set.PasswordField, creds.Password); err != nil {
		return "", fmt.Errorf("fill password: %w", err)
	}
	if err := d.trigger(ctx, h, set.SubmitSelector, set.PasswordField); err != nil {
		return "", fmt.Errorf("%w: %v", failure.ErrSubmissionFailed, err)
	}
	if err := d.settle(ctx, h); err != nil {
		return "", err
	}

	snap, err := h.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if d.rejected(snap, set) {
		d.logger().Warn("login rejected", "user", creds.Username, "url", snap.URL)
		return AuthFailedCredentials, fmt.Errorf("%w: credentials rejected for %s", failure.ErrAuthenticationFailed, creds.Username)
	}
	return AuthSuccess, nil
}

// SubmitQuery types query into the query field and triggers the search.
// Without a usable submit control, Enter is pressed in the query field.
func (d *Driver) SubmitQuery(ctx context.Context, h *session.Handle, set locator.Set, query string) (SubmissionResult, error) {
	if set.QueryField == "" {
		return SubmitFieldNotFound, fmt.Errorf("%w: query field", failure.ErrLocatorNotFound)
	}
	ok, err := present(ctx, h, set.QueryField)
	if err != nil {
		return "", err
	}
	if !ok {
		return SubmitFieldNotFound, fmt.Errorf("%w: %s", failure.ErrLocatorNotFound, set.QueryField)
	}
	if err := h.Fill(ctx, set.QueryField, query); err != nil {
		return SubmitFieldNotFound, fmt.Errorf("%w: fill %s: %v", failure.ErrSubmissionFailed, set.QueryField, err)
	}
	if err := d.trigger(ctx, h, set.SubmitSelector, set.QueryField); err != nil {
		return SubmitNotFound, fmt.Errorf("%w: %v", failure.ErrSubmissionFailed, err)
	}
	if err := d.settle(ctx, h); err != nil {
		return "", err
	}
	return SubmitSuccess, nil
}

func (d *Driver) trigger(ctx context.Context, h *session.Handle, submit, field string) error {
	if submit != "" {
		ok, err := present(ctx, h, submit)
		if err != nil {
			return err
		}
		if ok {
			err := h.Click(ctx, submit)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return err
			}
			d.logger().Debug("submit click failed, pressing enter", "selector", submit, "error", err)
		}
	}
	if err := h.Press(ctx, field, "Enter"); err != nil {
		return fmt.Errorf("no submit control and enter failed: %w", err)
	}
	return nil
}

// settle waits for the page to react. Running out of time is fine: the
// content may still be rendering and extraction decides what it got.
func (d *Driver) settle(ctx context.Context, h *session.Handle) error {
	timedOut, err := h.Settle(ctx)
	if err != nil {
		return err
	}
	if timedOut {
		d.logger().Debug("page did not settle, continuing")
	}
	return nil
}

func (d *Driver) rejected(snap *session.Snapshot, set locator.Set) bool {
	doc, err := snap.Document()
	if err == nil && browser.CountStatic(doc, set.LoginField) > 0 && browser.CountStatic(doc, set.PasswordField) > 0 {
		return true
	}
	markers := d.RejectionMarkers
	if markers == nil {
		markers = DefaultRejectionMarkers
	}
	text := strings.ToLower(snap.Text())
	for _, m := range markers {
		if strings.Contains(text, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// LoginWall reports whether a page is asking for a login instead of showing
// results.
func LoginWall(snap *session.Snapshot) bool {
	if strings.Contains(strings.ToLower(snap.URL), "login") {
		return true
	}
	doc, err := snap.Document()
	if err != nil {
		return false
	}
	if doc.Find(`input[type="password"]`).Length() > 0 {
		return true
	}
	return strings.Contains(snap.Text(), "Login:")
}

func present(ctx context.Context, h *session.Handle, selector string) (bool, error) {
	n, err := h.Count(ctx, selector)
	if err != nil {
		if errors.Is(err, session.ErrClosed) || ctx.Err() != nil {
			return false, err
		}
		return false, nil
	}
	return n > 0, nil
}
