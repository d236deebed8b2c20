package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/patrickjm/patsearch/internal/browser"
	"github.com/patrickjm/patsearch/internal/config"
	"github.com/patrickjm/patsearch/internal/daemon"
	"github.com/patrickjm/patsearch/internal/engine"
	"github.com/patrickjm/patsearch/internal/ocr"
	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/source"
	"github.com/patrickjm/patsearch/internal/telemetry"
)

type GlobalFlags struct {
	SourceDir string
	Socket    string
	JSON      bool
	Quiet     bool
	Verbose   bool
	Browser   string
	Channel   string
	Headed    bool
	Timeout   string
}

// App runs commands. Browser defaults to playwright; tests swap in a fake.
type App struct {
	Out     io.Writer
	Err     io.Writer
	Browser browser.Engine
}

type env struct {
	cfg    config.Config
	store  source.Store
	mgr    daemon.Manager
	logger *slog.Logger
}

func (a App) prepare(flags GlobalFlags) (env, error) {
	overrides := config.Overrides{
		SourceDir: flags.SourceDir,
		Browser:   flags.Browser,
		Channel:   flags.Channel,
		Headed:    flags.Headed,
		Timeout:   flags.Timeout,
	}
	if flags.Verbose {
		overrides.LogLevel = "debug"
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return env{}, err
	}
	store := source.Store{Root: cfg.SourceDir}
	if err := store.EnsureDir(); err != nil {
		return env{}, err
	}
	logger := newLogger(cfg, a.Err, flags.Quiet)
	slog.SetDefault(logger)
	return env{
		cfg:    cfg,
		store:  store,
		mgr:    daemon.Manager{Dir: filepath.Dir(cfg.SourceDir)},
		logger: logger,
	}, nil
}

func newLogger(cfg config.Config, w io.Writer, quiet bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if quiet {
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

const (
	exitSuccess  = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
)

func (a App) browserEngine() browser.Engine {
	if a.Browser != nil {
		return a.Browser
	}
	return browser.PlaywrightEngine{}
}

func (a App) service(e env) (*engine.Service, error) {
	eng, err := engine.FromConfig(e.cfg, a.browserEngine(), e.logger)
	if err != nil {
		return nil, err
	}
	return &engine.Service{Engine: eng, Sources: e.store, Logger: e.logger}, nil
}

func (a App) runInstall(flags GlobalFlags) int {
	browsers := []string{}
	if flags.Browser != "" {
		browsers = append(browsers, flags.Browser)
	}
	opts := &playwright.RunOptions{}
	if len(browsers) > 0 {
		opts.Browsers = browsers
	}
	if err := playwright.Install(opts); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if !flags.Quiet {
		if len(browsers) == 0 {
			fmt.Fprintln(a.Out, "Playwright installed")
		} else {
			fmt.Fprintf(a.Out, "Playwright installed: %s\n", strings.Join(browsers, ", "))
		}
	}
	return exitSuccess
}

type doctorResult struct {
	SourceDir         string `json:"source_dir"`
	SourceDirWritable bool   `json:"source_dir_writable"`
	PlaywrightOK      bool   `json:"playwright_ok"`
	BrowsersPath      string `json:"browsers_path,omitempty"`
	TesseractOK       bool   `json:"tesseract_ok"`
	AIKeySet          bool   `json:"ai_key_set"`
	AIKeyEnv          string `json:"ai_key_env"`
	DaemonRunning     bool   `json:"daemon_running"`
}

func (a App) runDoctor(e env, flags GlobalFlags) int {
	res := doctorResult{
		SourceDir:    e.cfg.SourceDir,
		BrowsersPath: os.Getenv("PLAYWRIGHT_BROWSERS_PATH"),
		AIKeySet:     e.cfg.AI.Enabled(),
		AIKeyEnv:     e.cfg.AI.APIKeyEnv,
	}
	if err := os.MkdirAll(e.cfg.SourceDir, 0o755); err == nil {
		res.SourceDirWritable = true
	}
	if pw, err := playwright.Run(); err == nil {
		res.PlaywrightOK = true
		pw.Stop()
	}
	if e.cfg.OCR.Enabled {
		_, err := ocr.Tesseract{Binary: e.cfg.OCR.Binary}.Available()
		res.TesseractOK = err == nil
	}
	res.DaemonRunning, _, _ = e.mgr.IsRunning()
	return a.writeDoctor(res, flags)
}

func (a App) writeDoctor(res doctorResult, flags GlobalFlags) int {
	if flags.JSON {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	fmt.Fprintf(a.Out, "source_dir=%s\n", res.SourceDir)
	fmt.Fprintf(a.Out, "source_dir_writable=%t\n", res.SourceDirWritable)
	fmt.Fprintf(a.Out, "playwright_ok=%t\n", res.PlaywrightOK)
	if res.BrowsersPath != "" {
		fmt.Fprintf(a.Out, "browsers_path=%s\n", res.BrowsersPath)
	}
	fmt.Fprintf(a.Out, "tesseract_ok=%t\n", res.TesseractOK)
	fmt.Fprintf(a.Out, "ai_key_set=%t (%s)\n", res.AIKeySet, res.AIKeyEnv)
	fmt.Fprintf(a.Out, "daemon_running=%t\n", res.DaemonRunning)
	return exitSuccess
}

type searchOptions struct {
	Source   string
	MaxPages int
	Local    bool
}

func (a App) runSearch(ctx context.Context, e env, flags GlobalFlags, opts searchOptions, query string) int {
	query = strings.TrimSpace(query)
	if query == "" {
		fmt.Fprintln(a.Err, "query required")
		return exitUsage
	}
	if opts.Source == "" {
		fmt.Fprintln(a.Err, "-s/--source is required")
		return exitUsage
	}
	rs, err := a.search(ctx, e, flags, opts, query)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	a.printResults(rs, flags)
	if rs.Status == record.StatusError {
		if !flags.JSON {
			fmt.Fprintln(a.Err, rs.Records[0].Abstract)
		}
		return exitFailure
	}
	return exitSuccess
}

// search goes through a daemon when one is reachable, otherwise runs in
// process.
func (a App) search(ctx context.Context, e env, flags GlobalFlags, opts searchOptions, query string) (record.ResultSet, error) {
	if socket := a.daemonSocket(e, flags, opts.Local); socket != "" {
		client, err := daemon.NewClient(socket)
		if err != nil {
			return record.ResultSet{}, err
		}
		defer client.Close()
		e.logger.Debug("searching through daemon", "socket", socket)
		return client.Search(opts.Source, query, opts.MaxPages)
	}
	shutdown, err := telemetry.Setup(ctx, "patsearch")
	if err != nil {
		e.logger.Warn("telemetry disabled", "error", err)
	}
	defer func() { _ = shutdown(context.Background()) }()
	svc, err := a.service(e)
	if err != nil {
		return record.ResultSet{}, err
	}
	return svc.Search(ctx, opts.Source, query, opts.MaxPages), nil
}

func (a App) daemonSocket(e env, flags GlobalFlags, local bool) string {
	if flags.Socket != "" {
		return flags.Socket
	}
	if local {
		return ""
	}
	running, info, err := e.mgr.IsRunning()
	if err != nil || !running {
		return ""
	}
	return info.Socket
}

func (a App) printResults(rs record.ResultSet, flags GlobalFlags) {
	if flags.JSON {
		b, _ := json.MarshalIndent(rs, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return
	}
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "status=%s count=%d\n", rs.Status, rs.Count)
	}
	if rs.IsSentinel() {
		return
	}
	for _, r := range rs.Records {
		fmt.Fprintf(a.Out, "%s\t%s\t%s\t%s\t%s\n", r.NaturalKey, r.Title, r.Date, r.Applicant, r.SourceStrategy)
	}
}

func (a App) runSourcesList(e env, flags GlobalFlags) int {
	sources, err := e.store.All()
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(sources, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	for _, d := range sources {
		last := "never"
		if !d.LastUsed.IsZero() {
			last = d.LastUsed.Format(time.RFC3339)
		}
		fmt.Fprintf(a.Out, "%s auth=%t max_pages=%d last_used=%s\n", d.Name, d.RequiresAuth, d.PageLimit(), last)
	}
	return exitSuccess
}

func (a App) runSourcesShow(e env, flags GlobalFlags, name string) int {
	d, err := e.store.Resolve(name)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		if errors.Is(err, source.ErrUnknownSource) {
			return exitNotFound
		}
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(d, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	fmt.Fprintf(a.Out, "name=%s\n", d.Name)
	fmt.Fprintf(a.Out, "search_url=%s\n", d.SearchURL)
	if d.LoginURL != "" {
		fmt.Fprintf(a.Out, "login_url=%s\n", d.LoginURL)
	}
	if d.QueryURL != "" {
		fmt.Fprintf(a.Out, "query_url=%s\n", d.QueryURL)
	}
	fmt.Fprintf(a.Out, "requires_auth=%t\n", d.RequiresAuth)
	if d.CredentialRef != "" {
		fmt.Fprintf(a.Out, "credential_ref=%s\n", d.CredentialRef)
	}
	fmt.Fprintf(a.Out, "max_pages=%d\n", d.PageLimit())
	fmt.Fprintf(a.Out, "step_timeout=%s\n", d.StepTimeout())
	for _, sel := range d.NextPage {
		fmt.Fprintf(a.Out, "next_page=%s\n", sel)
	}
	return exitSuccess
}

func (a App) runSourcesAdd(e env, flags GlobalFlags, name string, overrides source.Overrides) int {
	d, created, err := e.store.Upsert(name, overrides)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.Quiet {
		return exitSuccess
	}
	verb := "updated"
	if created {
		verb = "added"
	}
	fmt.Fprintf(a.Out, "%s %s\n", verb, d)
	return exitSuccess
}

func (a App) runSourcesRemove(e env, flags GlobalFlags, names []string) int {
	for _, name := range names {
		if _, err := e.store.Load(name); err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintf(a.Err, "%s is not a stored source\n", name)
				return exitNotFound
			}
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		if err := e.store.Remove(name); err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		if !flags.Quiet {
			fmt.Fprintf(a.Out, "removed %s\n", name)
		}
	}
	return exitSuccess
}

func (a App) runServe(ctx context.Context, e env, flags GlobalFlags) int {
	socket := flags.Socket
	info := ""
	if socket == "" {
		running, existing, err := e.mgr.IsRunning()
		if err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		if running {
			fmt.Fprintf(a.Err, "daemon already running (pid %d)\n", existing.PID)
			return exitFailure
		}
		socket = e.mgr.SocketPath()
		info = e.mgr.InfoPath()
	}
	shutdown, err := telemetry.Setup(ctx, "patsearch-daemon")
	if err != nil {
		e.logger.Warn("telemetry disabled", "error", err)
	}
	defer func() { _ = shutdown(context.Background()) }()
	svc, err := a.service(e)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	server := daemon.NewServer(svc, e.logger)
	if err := daemon.ServeSocket(ctx, socket, info, server); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	return exitSuccess
}

func (a App) runStop(e env, flags GlobalFlags) int {
	var err error
	if flags.Socket != "" {
		var client *daemon.Client
		client, err = daemon.NewClient(flags.Socket)
		if err == nil {
			err = client.Stop()
			_ = client.Close()
		}
	} else {
		err = e.mgr.Stop()
	}
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if !flags.Quiet {
		fmt.Fprintln(a.Out, "stopped")
	}
	return exitSuccess
}

func (a App) runStatus(e env, flags GlobalFlags) int {
	socket := a.daemonSocket(e, flags, false)
	if socket == "" {
		fmt.Fprintln(a.Err, "daemon is not running")
		return exitNotFound
	}
	client, err := daemon.NewClient(socket)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(status, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	fmt.Fprintf(a.Out, "pid=%d socket=%s started_at=%s in_flight=%d served=%d\n",
		status.PID, socket, status.StartedAt.Format(time.RFC3339), status.InFlight, status.Served)
	return exitSuccess
}

func sourceOverrides(url, loginURL, queryURL, credentialRef string, requiresAuth *bool, maxPages *int, stepTimeout string, next []string) (source.Overrides, error) {
	o := source.Overrides{
		SearchURL:     url,
		LoginURL:      loginURL,
		QueryURL:      queryURL,
		CredentialRef: credentialRef,
		RequiresAuth:  requiresAuth,
		MaxPages:      maxPages,
		NextPage:      next,
	}
	if maxPages != nil && *maxPages <= 0 {
		return o, errors.New("max pages must be positive")
	}
	if strings.TrimSpace(stepTimeout) != "" {
		d, err := time.ParseDuration(stepTimeout)
		if err != nil {
			return o, fmt.Errorf("invalid step timeout: %w", err)
		}
		o.StepTimeout = &d
	}
	return o, nil
}
