package interact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patrickjm/patsearch/internal/browser"
	"github.com/patrickjm/patsearch/internal/failure"
	"github.com/patrickjm/patsearch/internal/locator"
	"github.com/patrickjm/patsearch/internal/session"
	"github.com/patrickjm/patsearch/internal/source"
)

const (
	loginURL   = "https://office.test/login"
	homeURL    = "https://office.test/home"
	searchURL  = "https://office.test/search"
	resultsURL = "https://office.test/results"
)

const loginPage = `<html><body><form>
<input name="user"><input name="pass" type="password"><input type="submit" value="Entrar">
</form></body></html>`

var loginSet = locator.Set{
	LoginField:     `input[name="user"]`,
	PasswordField:  `input[name="pass"]`,
	SubmitSelector: `input[type="submit"]`,
}

func newSite() *browser.FakeSite {
	return &browser.FakeSite{
		Pages: map[string]string{
			loginURL:   loginPage,
			homeURL:    `<html><body>Bem-vindo</body></html>`,
			searchURL:  `<html><body><form><input name="q"></form></body></html>`,
			resultsURL: `<html><body><table><tr><td>BR102020001234</td></tr></table></body></html>`,
		},
		Navigate: func(p *browser.FakePage, selector string) (string, bool) {
			switch p.URLValue {
			case loginURL:
				// Fills is read directly: the page lock is held here.
				if p.Fills[`input[name="user"]`] == "alice" && p.Fills[`input[name="pass"]`] == "right" {
					return homeURL, true
				}
				return loginURL, true
			case searchURL:
				return resultsURL, true
			}
			return "", false
		},
	}
}

func open(t *testing.T, site *browser.FakeSite, url string) *session.Handle {
	t.Helper()
	desc := source.Descriptor{Name: "office", SearchURL: searchURL, StepTimeoutMs: 1000}
	h, err := session.Open(context.Background(), &browser.FakeEngine{Site: site}, desc, session.Options{})
	require.NoError(t, err)
	t.Cleanup(h.Close)
	require.NoError(t, h.Navigate(context.Background(), url))
	return h
}

func TestAuthenticateSuccess(t *testing.T) {
	h := open(t, newSite(), loginURL)
	d := &Driver{}
	res, err := d.Authenticate(context.Background(), h, loginSet, &source.Credentials{Username: "alice", Password: "right"})
	require.NoError(t, err)
	require.Equal(t, AuthSuccess, res)
	require.Equal(t, homeURL, h.URL())
}

func TestAuthenticateRejected(t *testing.T) {
	h := open(t, newSite(), loginURL)
	d := &Driver{}
	res, err := d.Authenticate(context.Background(), h, loginSet, &source.Credentials{Username: "alice", Password: "wrong"})
	require.Equal(t, AuthFailedCredentials, res)
	require.ErrorIs(t, err, failure.ErrAuthenticationFailed)
	require.False(t, failure.Retryable(err))
}

func TestAuthenticateRejectionMarker(t *testing.T) {
	site := newSite()
	site.Pages[homeURL] = `<html><body><p>Usuário ou senha inválidos</p></body></html>`
	h := open(t, site, loginURL)
	d := &Driver{}
	res, err := d.Authenticate(context.Background(), h, loginSet, &source.Credentials{Username: "alice", Password: "right"})
	require.Equal(t, AuthFailedCredentials, res)
	require.ErrorIs(t, err, failure.ErrAuthenticationFailed)
}

func TestAuthenticateSkippedAndMissing(t *testing.T) {
	h := open(t, newSite(), loginURL)
	d := &Driver{}

	res, err := d.Authenticate(context.Background(), h, locator.Set{QueryField: "x"}, nil)
	require.NoError(t, err)
	require.Equal(t, AuthSkipped, res)

	res, err = d.Authenticate(context.Background(), h, loginSet, nil)
	require.Equal(t, AuthFailedCredentials, res)
	require.ErrorIs(t, err, failure.ErrAuthenticationFailed)

	broken := loginSet
	broken.LoginField = "#nowhere"
	_, err = d.Authenticate(context.Background(), h, broken, &source.Credentials{Username: "a", Password: "b"})
	require.ErrorIs(t, err, failure.ErrLocatorNotFound)
	require.True(t, failure.Retryable(err))
}

func TestSubmitQueryPressesEnterWithoutSubmit(t *testing.T) {
	site := newSite()
	h := open(t, site, searchURL)
	d := &Driver{}
	res, err := d.SubmitQuery(context.Background(), h, locator.Set{QueryField: `input[name="q"]`}, "aspirin")
	require.NoError(t, err)
	require.Equal(t, SubmitSuccess, res)
	require.Equal(t, resultsURL, h.URL())

	page, err := h.Page()
	require.NoError(t, err)
	fp := page.(*browser.FakePage)
	require.Equal(t, "aspirin", fp.Filled(`input[name="q"]`))
	require.Equal(t, []string{`input[name="q"]=Enter`}, fp.Presses)
}

func TestSubmitQueryFieldNotFound(t *testing.T) {
	h := open(t, newSite(), searchURL)
	d := &Driver{}
	res, err := d.SubmitQuery(context.Background(), h, locator.Set{QueryField: "#missing", SubmitSelector: "#go"}, "x")
	require.Equal(t, SubmitFieldNotFound, res)
	require.ErrorIs(t, err, failure.ErrLocatorNotFound)

	res, err = d.SubmitQuery(context.Background(), h, locator.Set{}, "x")
	require.Equal(t, SubmitFieldNotFound, res)
	require.Error(t, err)
}

func TestSubmitSettleTimeoutContinues(t *testing.T) {
	site := newSite()
	site.SlowLoad = map[string]bool{resultsURL: true}
	h := open(t, site, searchURL)
	d := &Driver{}
	res, err := d.SubmitQuery(context.Background(), h, locator.Set{QueryField: `input[name="q"]`}, "x")
	require.NoError(t, err)
	require.Equal(t, SubmitSuccess, res)
}

func TestLoginWall(t *testing.T) {
	require.True(t, LoginWall(session.NewSnapshot(loginURL, `<html></html>`)))
	require.True(t, LoginWall(session.NewSnapshot(resultsURL, loginPage)))
	require.True(t, LoginWall(session.NewSnapshot(resultsURL, `<body><b>Login:</b></body>`)))
	require.False(t, LoginWall(session.NewSnapshot(resultsURL, `<body><table></table></body>`)))
}
