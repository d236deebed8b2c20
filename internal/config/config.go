package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	SourceDir   string
	Browser     string
	Channel     string
	Headless    bool
	MaxAttempts int
	BaseDelay   time.Duration
	StepTimeout time.Duration
	SettleDelay time.Duration
	LogLevel    string
	LogFormat   string
	NextPage    []string
	KeyPatterns []string
	AI          AI
	OCR         OCR
	Discovery   Discovery
}

type AI struct {
	BaseURL      string
	Model        string
	APIKeyEnv    string
	APIKey       string
	Timeout      time.Duration
	Rate         float64
	Burst        int
	ExcerptChars int
	SnippetChars int
}

// Enabled reports whether an API key is available for the AI collaborator.
func (a AI) Enabled() bool {
	return a.APIKey != "" && a.BaseURL != ""
}

type OCR struct {
	Enabled      bool
	Binary       string
	Languages    string
	Timeout      time.Duration
	MinTextChars int
}

// Discovery holds the attribute keywords used by the heuristic field scan.
type Discovery struct {
	Login    []string
	Password []string
	Query    []string
	Submit   []string
}

// Overrides are CLI flag values; empty fields leave the loaded value alone.
type Overrides struct {
	SourceDir string
	Browser   string
	Channel   string
	Headed    bool
	Timeout   string
	LogLevel  string
}

type rawConfig struct {
	SourceDir   string       `toml:"source_dir"`
	Browser     string       `toml:"browser"`
	Channel     string       `toml:"channel"`
	Headless    *bool        `toml:"headless"`
	MaxAttempts int          `toml:"max_attempts"`
	BaseDelay   string       `toml:"base_delay"`
	StepTimeout string       `toml:"step_timeout"`
	SettleDelay string       `toml:"settle_delay"`
	LogLevel    string       `toml:"log_level"`
	LogFormat   string       `toml:"log_format"`
	NextPage    []string     `toml:"next_page"`
	KeyPatterns []string     `toml:"key_patterns"`
	AI          rawAI        `toml:"ai"`
	OCR         rawOCR       `toml:"ocr"`
	Discovery   rawDiscovery `toml:"discovery"`
}

type rawAI struct {
	BaseURL      string  `toml:"base_url"`
	Model        string  `toml:"model"`
	APIKeyEnv    string  `toml:"api_key_env"`
	Timeout      string  `toml:"timeout"`
	Rate         float64 `toml:"rate"`
	Burst        int     `toml:"burst"`
	ExcerptChars int     `toml:"excerpt_chars"`
	SnippetChars int     `toml:"snippet_chars"`
}

type rawOCR struct {
	Enabled      *bool  `toml:"enabled"`
	Binary       string `toml:"binary"`
	Languages    string `toml:"languages"`
	Timeout      string `toml:"timeout"`
	MinTextChars int    `toml:"min_text_chars"`
}

type rawDiscovery struct {
	Login    []string `toml:"login"`
	Password []string `toml:"password"`
	Query    []string `toml:"query"`
	Submit   []string `toml:"submit"`
}

func Defaults() Config {
	return Config{
		SourceDir:   defaultSourceDir(),
		Browser:     "chromium",
		Headless:    true,
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		StepTimeout: 30 * time.Second,
		SettleDelay: 3 * time.Second,
		LogLevel:    "info",
		LogFormat:   "text",
		NextPage: []string{
			`a[rel="next"]`,
			`a[id*="nextPageLink"]`,
			`a[title*="Next"]`,
			`.ui-paginator-next:not(.ui-state-disabled)`,
			`input[value*="Next"]`,
			`text=Próxima`,
		},
		KeyPatterns: []string{
			`\bBR\s?\d{2}\s?\d{4}\s?\d{6}(?:-\d)?`,
			`\b(?:BR|PI|MU)\s?\d{4,}(?:[/-]?\d+)*`,
			`\b(?:WO|US|EP|CN|JP|KR|CA|AU|IN)[\s/]?\d{4,}(?:[/-]?\d+)*`,
		},
		AI: AI{
			BaseURL:      "https://api.groq.com/openai/v1",
			Model:        "llama-3.3-70b-versatile",
			APIKeyEnv:    "GROQ_API_KEY",
			Timeout:      30 * time.Second,
			Rate:         0.5,
			Burst:        1,
			ExcerptChars: 8000,
			SnippetChars: 10000,
		},
		OCR: OCR{
			Enabled:      true,
			Binary:       "tesseract",
			Languages:    "eng+por",
			Timeout:      60 * time.Second,
			MinTextChars: 200,
		},
		Discovery: Discovery{
			Login:    []string{"login", "usuario", "user", "email"},
			Password: []string{"senha", "password", "passwd", "pass"},
			Query:    []string{"query", "palavra", "expressao", "search", "busca", "pesquisa", "keyword", "term"},
			Submit:   []string{"pesquisar", "buscar", "search", "submit", "continuar", "entrar", "login"},
		},
	}
}

// Load layers defaults, the first config.toml found, .env, PATSEARCH_*
// variables and finally flag overrides.
func Load(o Overrides) (Config, error) {
	cfg := Defaults()

	if err := loadSystemConfig(&cfg, configPaths()); err != nil {
		return Config{}, err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	applyEnv(&cfg)

	if v := strings.TrimSpace(o.SourceDir); v != "" {
		cfg.SourceDir = v
	}
	if v := strings.TrimSpace(o.Browser); v != "" {
		cfg.Browser = v
	}
	if v := strings.TrimSpace(o.Channel); v != "" {
		cfg.Channel = v
	}
	if o.Headed {
		cfg.Headless = false
	}
	if v := strings.TrimSpace(o.Timeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, err
		}
		cfg.StepTimeout = d
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	cfg.AI.APIKey = strings.TrimSpace(os.Getenv(cfg.AI.APIKeyEnv))
	return cfg, nil
}

func configPaths() []string {
	paths := []string{
		"/opt/homebrew/etc/patsearch/config.toml",
		"/usr/local/etc/patsearch/config.toml",
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		paths = append([]string{filepath.Join(xdg, "patsearch", "config.toml")}, paths...)
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append([]string{filepath.Join(home, ".config", "patsearch", "config.toml")}, paths...)
	}
	return paths
}

func loadSystemConfig(cfg *Config, paths []string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var raw rawConfig
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return err
		}
		raw.apply(cfg)
		return nil
	}
	return nil
}

func (raw rawConfig) apply(cfg *Config) {
	setString(&cfg.SourceDir, raw.SourceDir)
	setString(&cfg.Browser, raw.Browser)
	setString(&cfg.Channel, raw.Channel)
	if raw.Headless != nil {
		cfg.Headless = *raw.Headless
	}
	if raw.MaxAttempts > 0 {
		cfg.MaxAttempts = raw.MaxAttempts
	}
	setDuration(&cfg.BaseDelay, raw.BaseDelay)
	setDuration(&cfg.StepTimeout, raw.StepTimeout)
	setDuration(&cfg.SettleDelay, raw.SettleDelay)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogFormat, raw.LogFormat)
	setList(&cfg.NextPage, raw.NextPage)
	setList(&cfg.KeyPatterns, raw.KeyPatterns)

	setString(&cfg.AI.BaseURL, raw.AI.BaseURL)
	setString(&cfg.AI.Model, raw.AI.Model)
	setString(&cfg.AI.APIKeyEnv, raw.AI.APIKeyEnv)
	setDuration(&cfg.AI.Timeout, raw.AI.Timeout)
	if raw.AI.Rate > 0 {
		cfg.AI.Rate = raw.AI.Rate
	}
	if raw.AI.Burst > 0 {
		cfg.AI.Burst = raw.AI.Burst
	}
	if raw.AI.ExcerptChars > 0 {
		cfg.AI.ExcerptChars = raw.AI.ExcerptChars
	}
	if raw.AI.SnippetChars > 0 {
		cfg.AI.SnippetChars = raw.AI.SnippetChars
	}

	if raw.OCR.Enabled != nil {
		cfg.OCR.Enabled = *raw.OCR.Enabled
	}
	setString(&cfg.OCR.Binary, raw.OCR.Binary)
	setString(&cfg.OCR.Languages, raw.OCR.Languages)
	setDuration(&cfg.OCR.Timeout, raw.OCR.Timeout)
	if raw.OCR.MinTextChars > 0 {
		cfg.OCR.MinTextChars = raw.OCR.MinTextChars
	}

	setList(&cfg.Discovery.Login, raw.Discovery.Login)
	setList(&cfg.Discovery.Password, raw.Discovery.Password)
	setList(&cfg.Discovery.Query, raw.Discovery.Query)
	setList(&cfg.Discovery.Submit, raw.Discovery.Submit)
}

func applyEnv(cfg *Config) {
	if v := env("SOURCE_DIR"); v != "" {
		cfg.SourceDir = v
	}
	if v := env("BROWSER"); v != "" {
		cfg.Browser = v
	}
	if v := env("HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Headless = b
		}
	}
	if v := env("MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAttempts = n
		}
	}
	setDuration(&cfg.BaseDelay, env("BASE_DELAY"))
	setDuration(&cfg.StepTimeout, env("STEP_TIMEOUT"))
	setDuration(&cfg.SettleDelay, env("SETTLE_DELAY"))
	setString(&cfg.LogLevel, env("LOG_LEVEL"))
	setString(&cfg.LogFormat, env("LOG_FORMAT"))
	setString(&cfg.AI.BaseURL, env("AI_BASE_URL"))
	setString(&cfg.AI.Model, env("AI_MODEL"))
	if v := env("OCR_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OCR.Enabled = b
		}
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv("PATSEARCH_" + key))
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(dst *time.Duration, v string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = append([]string{}, v...)
	}
}

func defaultSourceDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/patsearch"
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "patsearch", "sources")
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "patsearch", "sources")
	}
	return filepath.Join(home, ".local", "share", "patsearch", "sources")
}
