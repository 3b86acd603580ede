// Package pacing injects human-like delays between external actions and
// escalates backoff when an external surface signals rate limiting.
//
// One Policy tracks the pressure on one external surface. Discovery
// strategies and the resolver share the policy for a surface so that
// backoff state reflects total pressure, not per-component pressure.
package pacing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Kind categorizes an action for delay selection.
type Kind int

// Action kinds, ordered roughly by how long a human would linger.
const (
	Read Kind = iota
	Navigate
	Typing
	PostError
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Navigate:
		return "navigate"
	case Typing:
		return "typing"
	case PostError:
		return "post_error"
	default:
		return "unknown"
	}
}

// delay ranges per action kind.
var kindRanges = map[Kind][2]time.Duration{
	Read:      {500 * time.Millisecond, 1500 * time.Millisecond},
	Navigate:  {2 * time.Second, 5 * time.Second},
	Typing:    {80 * time.Millisecond, 300 * time.Millisecond},
	PostError: {5 * time.Second, 10 * time.Second},
}

// Policy holds the backoff state for one external surface.
type Policy struct {
	mu          sync.Mutex
	consecutive int
	base        time.Duration
	cap         time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Policy.
type Option func(*Policy)

// WithBase sets the base backoff duration. Default: 2s.
func WithBase(d time.Duration) Option {
	return func(p *Policy) { p.base = d }
}

// WithCap sets the maximum backoff duration. Default: 5m.
func WithCap(d time.Duration) Option {
	return func(p *Policy) { p.cap = d }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) { p.logger = logger }
}

// WithSleep overrides the sleep function. Tests use it to observe
// computed delays without waiting them out.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(p *Policy) { p.sleep = fn }
}

// New creates a pacing policy.
func New(opts ...Option) *Policy {
	p := &Policy{
		base:   2 * time.Second,
		cap:    5 * time.Minute,
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BeforeAction suspends the caller for a randomized duration appropriate
// to the action kind. Returns early if the context is cancelled.
func (p *Policy) BeforeAction(ctx context.Context, kind Kind) error {
	r, ok := kindRanges[kind]
	if !ok {
		r = kindRanges[Read]
	}
	d := r[0] + rand.N(r[1]-r[0]) //nolint:gosec // jitter, not crypto
	return p.sleep(ctx, d)
}

// OnRateLimited records a rate-limit signal and suspends for an
// exponentially growing duration: base * 2^consecutiveErrors, capped.
func (p *Policy) OnRateLimited(ctx context.Context) error {
	p.mu.Lock()
	p.consecutive++
	d := p.nextBackoffLocked()
	n := p.consecutive
	p.mu.Unlock()

	p.logger.WarnContext(ctx, "rate limited, backing off", "consecutive", n, "wait", d)
	return p.sleep(ctx, d)
}

// OnSuccess resets the consecutive-error counter.
func (p *Policy) OnSuccess() {
	p.mu.Lock()
	p.consecutive = 0
	p.mu.Unlock()
}

// NextBackoff returns the suspension the next rate-limit signal would
// incur, without sleeping or mutating state.
func (p *Policy) NextBackoff() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutive++
	d := p.nextBackoffLocked()
	p.consecutive--
	return d
}

func (p *Policy) nextBackoffLocked() time.Duration {
	d := p.base
	for i := 0; i < p.consecutive; i++ {
		d *= 2
		if d >= p.cap {
			return p.cap
		}
	}
	if d > p.cap {
		return p.cap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Group keys shared policies by external surface name so concurrent runs
// hitting the same surface share backoff pressure.
type Group struct {
	mu       sync.Mutex
	policies map[string]*Policy
	opts     []Option
}

// NewGroup creates a policy group; opts apply to every policy it creates.
func NewGroup(opts ...Option) *Group {
	return &Group{policies: make(map[string]*Policy), opts: opts}
}

// For returns the shared policy for a surface, creating it on first use.
func (g *Group) For(surface string) *Policy {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.policies[surface]; ok {
		return p
	}
	p := New(g.opts...)
	g.policies[surface] = p
	return p
}
