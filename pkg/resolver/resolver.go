// Package resolver turns a platform handle into a normalized profile
// snapshot, preferring cheap structured fetches and falling back to a
// full page render.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/scoutline-dev/scoutline/pkg/pacing"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

// attemptCeiling bounds resolution retries per handle. An exhausted
// ceiling yields a failed attempt, never an aborted run.
const attemptCeiling = 3

// StructuredFetcher produces a snapshot via a lightweight structured
// endpoint, without rendering. Platform clients implement this.
type StructuredFetcher interface {
	Fetch(ctx context.Context, username string) (*prospect.Snapshot, error)
}

// Renderer serializes a fully rendered page, for profiles whose
// structured surfaces are unavailable.
type Renderer interface {
	HTML(ctx context.Context, url string) (string, error)
}

// Resolver resolves handles across the configured platforms.
type Resolver struct {
	fetchers map[prospect.Platform]StructuredFetcher
	renderer Renderer
	pacing   *pacing.Group
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFetcher registers the structured fetcher for a platform.
func WithFetcher(p prospect.Platform, f StructuredFetcher) Option {
	return func(r *Resolver) { r.fetchers[p] = f }
}

// WithRenderer sets the render fallback. Without one, handles whose
// structured fetch fails resolve as failures.
func WithRenderer(renderer Renderer) Option {
	return func(r *Resolver) { r.renderer = renderer }
}

// WithPacing sets the shared pacing group.
func WithPacing(group *pacing.Group) Option {
	return func(r *Resolver) { r.pacing = group }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// New creates a resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		fetchers: make(map[prospect.Platform]StructuredFetcher),
		pacing:   pacing.NewGroup(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces a snapshot for the handle or a typed failure.
// Transient failures are retried up to a fixed ceiling with the shared
// pacing policy between attempts; not-found and private are permanent.
func (r *Resolver) Resolve(ctx context.Context, platform prospect.Platform, username string) (*prospect.Snapshot, error) {
	policy := r.pacing.For(string(platform))

	snapshot, err := retry.DoWithData(
		func() (*prospect.Snapshot, error) {
			if err := policy.BeforeAction(ctx, pacing.Navigate); err != nil {
				return nil, err
			}
			s, err := r.resolveOnce(ctx, platform, username)
			if err != nil {
				if errors.Is(err, prospect.ErrRateLimited) {
					if berr := policy.OnRateLimited(ctx); berr != nil {
						return nil, berr
					}
				}
				return nil, err
			}
			policy.OnSuccess()
			return s, nil
		},
		retry.Context(ctx),
		retry.Attempts(attemptCeiling),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(250*time.Millisecond),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, prospect.ErrProfileNotFound) &&
				!errors.Is(err, prospect.ErrPrivateAccount) &&
				!errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			r.logger.InfoContext(ctx, "retrying resolution",
				"platform", platform, "username", username, "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%s: %w", platform, username, err)
	}
	return snapshot, nil
}

// IsPrivate is the cheap pre-check the admission flow calls before full
// resolution to short-circuit known-private accounts.
func (r *Resolver) IsPrivate(ctx context.Context, platform prospect.Platform, username string) (bool, error) {
	type privateChecker interface {
		IsPrivate(ctx context.Context, username string) (bool, error)
	}

	fetcher, ok := r.fetchers[platform]
	if !ok {
		return false, fmt.Errorf("no fetcher for platform %s", platform)
	}
	if pc, ok := fetcher.(privateChecker); ok {
		return pc.IsPrivate(ctx, username)
	}

	// No cheaper path on this platform: the flag rides on the snapshot.
	s, err := fetcher.Fetch(ctx, username)
	if err != nil {
		return false, err
	}
	return s.Private, nil
}

func (r *Resolver) resolveOnce(ctx context.Context, platform prospect.Platform, username string) (*prospect.Snapshot, error) {
	fetcher, ok := r.fetchers[platform]
	if !ok {
		return nil, fmt.Errorf("no fetcher for platform %s", platform)
	}

	s, err := fetcher.Fetch(ctx, username)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, prospect.ErrProfileNotFound) ||
		errors.Is(err, prospect.ErrRateLimited) ||
		errors.Is(err, prospect.ErrPrivateAccount) {
		return nil, err
	}

	if r.renderer == nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "structured fetch failed, rendering",
		"platform", platform, "username", username, "error", err)
	return r.resolveRendered(ctx, platform, username)
}

func (r *Resolver) resolveRendered(ctx context.Context, platform prospect.Platform, username string) (*prospect.Snapshot, error) {
	url := prospect.ProfileURL(platform, username)
	html, err := r.renderer.HTML(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	if err := QuickValidate(html, platform); err != nil {
		return nil, err
	}
	return parseRendered(html, platform, username)
}
