package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const loginPage = `<html><head><script>var x = "secret";</script><style>.a{}</style></head>
<body><nav><a href="/">Home</a></nav>
<form action="/login" method="post" onsubmit="go()">
  <label for="u">Usuário</label><input id="u" name="T_Login" type="text" style="color:red">
  <input name="T_Senha" type="password">
  <input type="submit" value="Continuar">
</form></body></html>`

func TestFormsKeepsIdentifyingAttributes(t *testing.T) {
	out := Forms(loginPage, 0)
	require.Contains(t, out, `name="T_Login"`)
	require.Contains(t, out, `type="password"`)
	require.Contains(t, out, `value="Continuar"`)
	require.NotContains(t, out, "secret")
	require.NotContains(t, out, "onsubmit")
	require.NotContains(t, out, "style")
	require.NotContains(t, out, "Home", "only forms are kept when the page has one")
}

func TestResultsDropsNoise(t *testing.T) {
	html := `<body><script>track()</script><div class="result" onclick="x()"><span class="num">WO2020123456</span>
	<div></div><img src="a.png"><a href="/d" class="title">Widget</a></div></body>`
	out := Results(html, 0)
	require.True(t, strings.HasPrefix(out, `<div class="result"><span class="num">WO2020123456</span>`), out)
	require.Contains(t, out, `<a class="title">Widget</a>`)
	require.NotContains(t, out, "track")
	require.NotContains(t, out, "onclick")
	require.NotContains(t, out, "<div></div>")
	require.NotContains(t, out, "img")
}

func TestClipRespectsRunes(t *testing.T) {
	s := strings.Repeat("é", 10)
	out := clip(s, 5)
	require.Equal(t, "éé", out)
	require.Equal(t, "abc", clip("abc", 10))
}
