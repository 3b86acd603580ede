// Package browser manages a headless Chromium instance for rendering
// profile and timeline pages that structured endpoints cannot serve.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// ErrClosed is returned when an operation is attempted on a closed session.
var ErrClosed = errors.New("browser session closed")

const (
	defaultNavTimeout  = 30 * time.Second
	defaultEvalTimeout = 10 * time.Second
)

// Config controls the browser session.
type Config struct {
	// Headless runs the browser without a visible window. Defaults to true
	// unless Headful is set.
	Headful bool
	// NavTimeout bounds each page navigation. Zero means 30s.
	NavTimeout time.Duration
	// Logger receives lifecycle events. Nil means slog.Default().
	Logger *slog.Logger
}

// Session owns a browser process and its control connection.
type Session struct {
	browser    *rod.Browser
	launch     *launcher.Launcher
	logger     *slog.Logger
	navTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Open launches a browser and connects to it.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	navTimeout := cfg.NavTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavTimeout
	}

	launch := launcher.New().
		Headless(!cfg.Headful).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-gpu").
		Set("no-first-run")

	wsURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	logger.DebugContext(ctx, "browser launched", "headless", !cfg.Headful)

	return &Session{
		browser:    b,
		launch:     launch,
		logger:     logger,
		navTimeout: navTimeout,
	}, nil
}

// HTML navigates a fresh stealth page to url, waits for the load event and
// returns the serialized DOM. The page is closed before returning.
func (s *Session) HTML(ctx context.Context, url string) (string, error) {
	page, err := s.OpenPage(ctx, url)
	if err != nil {
		return "", err
	}
	defer page.Close()

	return page.HTML(ctx)
}

// OpenPage navigates a fresh stealth page to url and returns it for further
// interaction. The caller must Close the page.
func (s *Session) OpenPage(ctx context.Context, url string) (*Page, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("open stealth page: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	p := page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}

	s.logger.DebugContext(ctx, "page loaded", "url", url)

	return &Page{page: page, logger: s.logger}, nil
}

// Close shuts down the browser and its process.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.browser.Close()
	s.launch.Cleanup()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Page is a live browser tab.
type Page struct {
	page   *rod.Page
	logger *slog.Logger
}

// Scroll scrolls the page to the bottom and waits briefly for lazy content.
func (p *Page) Scroll(ctx context.Context) error {
	evalCtx, cancel := context.WithTimeout(ctx, defaultEvalTimeout)
	defer cancel()

	_, err := p.page.Context(evalCtx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	if err != nil {
		return fmt.Errorf("scroll: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(1500 * time.Millisecond):
	}
	return nil
}

// HTML returns the serialized DOM of the page.
func (p *Page) HTML(ctx context.Context) (string, error) {
	evalCtx, cancel := context.WithTimeout(ctx, defaultEvalTimeout)
	defer cancel()

	result, err := p.page.Context(evalCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("serialize dom: %w", err)
	}
	return result.Value.Str(), nil
}

// Close closes the tab.
func (p *Page) Close() {
	if err := p.page.Close(); err != nil {
		p.logger.Debug("failed to close page", "error", err)
	}
}
