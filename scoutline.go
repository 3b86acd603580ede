// Package scoutline discovers, resolves, validates and deduplicates
// social-media prospects.
//
// Basic usage:
//
//	engine, err := scoutline.New(ctx, scoutline.WithDatabase("scoutline.db"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	runID, err := engine.LaunchRun(ctx, prospect.RunConfig{
//	    Platforms:    []prospect.Platform{prospect.Instagram},
//	    Regions:      []string{"CZ"},
//	    MinFollowers: 1000,
//	    MaxFollowers: 100000,
//	    TargetCount:  25,
//	})
//
// Runs execute in the background; poll RunStatus or serve the pkg/api
// handler to observe them.
package scoutline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scoutline-dev/scoutline/pkg/browser"
	"github.com/scoutline-dev/scoutline/pkg/discover"
	"github.com/scoutline-dev/scoutline/pkg/enrich"
	"github.com/scoutline-dev/scoutline/pkg/httpcache"
	"github.com/scoutline-dev/scoutline/pkg/instagram"
	"github.com/scoutline-dev/scoutline/pkg/pacing"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
	"github.com/scoutline-dev/scoutline/pkg/resolver"
	"github.com/scoutline-dev/scoutline/pkg/runner"
	"github.com/scoutline-dev/scoutline/pkg/store"
	"github.com/scoutline-dev/scoutline/pkg/tiktok"
	"github.com/scoutline-dev/scoutline/pkg/youtube"
)

const defaultCacheTTL = 24 * time.Hour

// Option configures an Engine.
type Option func(*config)

type config struct {
	dbPath         string
	cookies        map[string]string
	browserCookies bool
	headful        bool
	noBrowser      bool
	cacheTTL       time.Duration
	searchURL      string
	seeds          []prospect.Handle
	logger         *slog.Logger
}

// WithDatabase sets the SQLite database path. Defaults to scoutline.db
// in the working directory.
func WithDatabase(path string) Option {
	return func(c *config) { c.dbPath = path }
}

// WithCookies sets explicit cookie values for authenticated platforms.
func WithCookies(cookies map[string]string) Option {
	return func(c *config) { c.cookies = cookies }
}

// WithBrowserCookies extracts cookies from installed browsers.
func WithBrowserCookies() Option {
	return func(c *config) { c.browserCookies = true }
}

// WithHeadful runs the rendering browser with a visible window.
func WithHeadful() Option {
	return func(c *config) { c.headful = true }
}

// WithoutBrowser disables the rendering browser entirely. Resolution
// loses its render fallback and discovery loses the hashtag, geo and
// chain strategies; search-based discovery still works.
func WithoutBrowser() Option {
	return func(c *config) { c.noBrowser = true }
}

// WithCacheTTL sets the HTTP cache lifetime. Zero keeps the default.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *config) { c.cacheTTL = ttl }
}

// WithSearchURL overrides the search surface endpoint.
func WithSearchURL(u string) Option {
	return func(c *config) { c.searchURL = u }
}

// WithSeeds sets the seed handles connection-chain discovery expands from.
func WithSeeds(seeds []prospect.Handle) Option {
	return func(c *config) { c.seeds = seeds }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Engine wires the store, the platform clients, the discovery
// strategies and the run controller into one operator surface.
type Engine struct {
	store   *store.Store
	session *browser.Session
	runner  *runner.Runner
	logger  *slog.Logger
}

// New builds an engine. The rendering browser is best effort: when no
// Chrome can be launched the engine still works, minus the render
// fallback and the browser-backed discovery strategies.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg := config{
		dbPath:   "scoutline.db",
		cacheTTL: defaultCacheTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.Open(ctx, cfg.dbPath, store.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	cache, err := httpcache.New(cfg.cacheTTL)
	if err != nil {
		cfg.logger.WarnContext(ctx, "http cache unavailable, continuing without", "error", err)
		cache = httpcache.NewNull()
	}

	group := pacing.NewGroup(pacing.WithLogger(cfg.logger))

	igClient, err := newInstagram(ctx, cfg, cache)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create instagram client: %w", err)
	}
	ttClient, err := newTikTok(ctx, cfg, cache)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create tiktok client: %w", err)
	}
	ytClient, err := youtube.New(ctx, youtube.WithHTTPCache(cache), youtube.WithLogger(cfg.logger))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create youtube client: %w", err)
	}

	var session *browser.Session
	if !cfg.noBrowser {
		session, err = browser.Open(ctx, browser.Config{Headful: cfg.headful, Logger: cfg.logger})
		if err != nil {
			cfg.logger.WarnContext(ctx, "browser unavailable, render fallback disabled", "error", err)
			session = nil
		}
	}

	resolverOpts := []resolver.Option{
		resolver.WithFetcher(prospect.Instagram, igClient),
		resolver.WithFetcher(prospect.TikTok, ttClient),
		resolver.WithFetcher(prospect.YouTube, ytClient),
		resolver.WithPacing(group),
		resolver.WithLogger(cfg.logger),
	}
	if session != nil {
		resolverOpts = append(resolverOpts, resolver.WithRenderer(session))
	}
	res := resolver.New(resolverOpts...)

	searchOpts := []discover.SearchOption{
		discover.WithSearchCache(cache),
		discover.WithSearchPacing(group),
		discover.WithSearchLogger(cfg.logger),
	}
	if cfg.searchURL != "" {
		searchOpts = append(searchOpts, discover.WithSearchURL(cfg.searchURL))
	}
	strategies := []discover.Strategy{discover.NewSearch(searchOpts...)}
	if session != nil {
		hashtag := discover.NewHashtag(pageOpener{session}, group, cfg.logger)
		strategies = append(strategies,
			hashtag,
			discover.NewGeo(hashtag, cfg.logger),
			discover.NewChain(session, chainSeeds{static: cfg.seeds, store: st}, group, cfg.logger),
		)
	}

	run := runner.New(st, res,
		runner.WithStrategies(strategies...),
		runner.WithLogger(cfg.logger),
	)

	return &Engine{store: st, session: session, runner: run, logger: cfg.logger}, nil
}

func newInstagram(ctx context.Context, cfg config, cache httpcache.Cacher) (*instagram.Client, error) {
	opts := []instagram.Option{instagram.WithHTTPCache(cache), instagram.WithLogger(cfg.logger)}
	if cfg.cookies != nil {
		opts = append(opts, instagram.WithCookies(cfg.cookies))
	}
	if cfg.browserCookies {
		opts = append(opts, instagram.WithBrowserCookies())
	}
	return instagram.New(ctx, opts...)
}

func newTikTok(ctx context.Context, cfg config, cache httpcache.Cacher) (*tiktok.Client, error) {
	opts := []tiktok.Option{tiktok.WithHTTPCache(cache), tiktok.WithLogger(cfg.logger)}
	if cfg.cookies != nil {
		opts = append(opts, tiktok.WithCookies(cfg.cookies))
	}
	if cfg.browserCookies {
		opts = append(opts, tiktok.WithBrowserCookies())
	}
	return tiktok.New(ctx, opts...)
}

// chainSeedLimit caps how many recently admitted prospects re-seed the
// chain traversal per pass.
const chainSeedLimit = 25

// chainSeeds feeds chain discovery with the operator's seed handles plus
// the most recently admitted prospects, so the traversal expands from
// accounts this run (and earlier runs) already qualified.
type chainSeeds struct {
	static []prospect.Handle
	store  *store.Store
}

func (s chainSeeds) Seeds(ctx context.Context) ([]prospect.Handle, error) {
	admitted, err := s.store.AdmittedHandles(ctx, chainSeedLimit)
	if err != nil {
		return nil, err
	}
	return append(append([]prospect.Handle(nil), s.static...), admitted...), nil
}

// pageOpener adapts the browser session to the discovery page interface.
type pageOpener struct {
	session *browser.Session
}

func (o pageOpener) OpenPage(ctx context.Context, url string) (discover.Page, error) {
	return o.session.OpenPage(ctx, url)
}

// LaunchRun validates cfg, persists a pending run and starts its
// pipeline in the background. Returns the run ID.
func (e *Engine) LaunchRun(ctx context.Context, cfg prospect.RunConfig) (string, error) {
	return e.runner.Start(ctx, cfg)
}

// RunStatus reports the current progress of a run.
func (e *Engine) RunStatus(ctx context.Context, runID string) (*runner.Progress, error) {
	return e.runner.Progress(ctx, runID)
}

// CancelRun requests cooperative cancellation of a running run.
func (e *Engine) CancelRun(ctx context.Context, runID string) error {
	return e.runner.Cancel(ctx, runID)
}

// ListRuns returns all runs, newest first.
func (e *Engine) ListRuns(ctx context.Context) ([]*prospect.Run, error) {
	return e.store.ListRuns(ctx)
}

// RunAttempts returns the audit trail of a run.
func (e *Engine) RunAttempts(ctx context.Context, runID string) ([]*prospect.Attempt, error) {
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return e.store.AttemptsForRun(ctx, runID)
}

// RunProspects returns the prospects a run admitted.
func (e *Engine) RunProspects(ctx context.Context, runID string) ([]*prospect.Prospect, error) {
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return e.store.ProspectsForRun(ctx, runID)
}

// EnrichEmails scans stored prospects that carry a bio but no email and
// fills in addresses found in the bio text. Safe to run repeatedly.
func (e *Engine) EnrichEmails(ctx context.Context) (*enrich.Result, error) {
	return enrich.Emails(ctx, e.store, e.logger)
}

// Close waits for in-flight runs to reach a terminal state and releases
// the browser and the store.
func (e *Engine) Close() error {
	e.runner.Wait()
	var firstErr error
	if e.session != nil {
		if err := e.session.Close(); err != nil {
			firstErr = err
		}
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
