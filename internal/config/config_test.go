package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, "llama-3.3-70b-versatile", cfg.AI.Model)
	require.Equal(t, 10000, cfg.AI.SnippetChars)
	require.Contains(t, cfg.Discovery.Password, "senha")
	require.Contains(t, cfg.Discovery.Query, "expressao")
	require.NotEmpty(t, cfg.KeyPatterns)
}

func TestSystemConfigLayer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_attempts = 5
base_delay = "250ms"
headless = false
next_page = ["a.more"]

[ai]
model = "other-model"

[ocr]
enabled = false

[discovery]
query = ["termo"]
`), 0o644))

	cfg := Defaults()
	require.NoError(t, loadSystemConfig(&cfg, []string{filepath.Join(dir, "missing.toml"), path}))
	require.Equal(t, 5, cfg.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.BaseDelay)
	require.False(t, cfg.Headless)
	require.Equal(t, []string{"a.more"}, cfg.NextPage)
	require.Equal(t, "other-model", cfg.AI.Model)
	require.False(t, cfg.OCR.Enabled)
	require.Equal(t, []string{"termo"}, cfg.Discovery.Query)
	require.Contains(t, cfg.Discovery.Login, "usuario", "unset lists keep defaults")
}

func TestSystemConfigRejectsBrokenToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_attempts = ["), 0o644))
	cfg := Defaults()
	require.Error(t, loadSystemConfig(&cfg, []string{path}))
}

func TestLoadEnvAndOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PATSEARCH_MAX_ATTEMPTS", "7")
	t.Setenv("PATSEARCH_SOURCE_DIR", "/env/sources")
	t.Setenv("GROQ_API_KEY", "k")

	cfg, err := Load(Overrides{SourceDir: "/flag/sources", Headed: true, Timeout: "5s"})
	require.NoError(t, err)
	require.Equal(t, 7, cfg.MaxAttempts)
	require.Equal(t, "/flag/sources", cfg.SourceDir)
	require.False(t, cfg.Headless)
	require.Equal(t, 5*time.Second, cfg.StepTimeout)
	require.True(t, cfg.AI.Enabled())

	_, err = Load(Overrides{Timeout: "soon"})
	require.Error(t, err)
}
