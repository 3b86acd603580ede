// Package dedupe is the run-scoped admission controller: it keeps
// already-known identities from being re-resolved or re-admitted.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/scoutline-dev/scoutline/pkg/emailx"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

// IdentityFinder is the slice of the store the controller needs.
type IdentityFinder interface {
	FindProspectsByIdentity(ctx context.Context, fields []string) ([]*prospect.Prospect, error)
}

// Controller gates one run's pipeline. A match on any single identity
// field classifies as duplicate; false duplicates are preferred over
// polluting the store.
type Controller struct {
	finder IdentityFinder
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// New creates an admission controller for one run.
func New(finder IdentityFinder, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		finder: finder,
		logger: logger,
		seen:   make(map[string]bool),
	}
}

// PreFilter drops handles whose identity is already in the run's seen set
// or the persistent store. Cheap batch check run before resolution.
func (c *Controller) PreFilter(ctx context.Context, handles []prospect.Handle) ([]prospect.Handle, error) {
	var fresh []prospect.Handle
	for _, h := range handles {
		key := h.Key()
		if c.wasSeen(key) {
			continue
		}

		known, err := c.finder.FindProspectsByIdentity(ctx, []string{key})
		if err != nil {
			return nil, fmt.Errorf("pre-filter %s: %w", key, err)
		}
		if len(known) > 0 {
			// Mark it so later batches skip the store round-trip.
			c.markSeen(key)
			continue
		}
		fresh = append(fresh, h)
	}

	if dropped := len(handles) - len(fresh); dropped > 0 {
		c.logger.DebugContext(ctx, "pre-filter dropped known handles",
			"dropped", dropped, "kept", len(fresh))
	}
	return fresh, nil
}

// IsDuplicate is the authoritative check on a resolved snapshot, covering
// every identity field it carries: platform handle, canonical profile URL
// and any email extractable from the bio.
func (c *Controller) IsDuplicate(ctx context.Context, s *prospect.Snapshot) (bool, error) {
	fields := IdentityFields(s)

	c.mu.Lock()
	for _, f := range fields {
		if c.seen[f] {
			c.mu.Unlock()
			return true, nil
		}
	}
	c.mu.Unlock()

	known, err := c.finder.FindProspectsByIdentity(ctx, fields)
	if err != nil {
		return false, fmt.Errorf("duplicate check %s:%s: %w", s.Platform, s.Username, err)
	}
	return len(known) > 0, nil
}

// MarkProcessed records a handle in the run's seen set regardless of how
// its candidate turned out. Failed, private and validation-rejected
// handles already have their Attempt row; a later strategy or region
// emitting the same handle must not produce a second one.
func (c *Controller) MarkProcessed(h prospect.Handle) {
	c.markSeen(h.Key())
}

// Admit records all of the snapshot's identity fields in the run's seen
// set so the very next duplicate check observes them.
func (c *Controller) Admit(s *prospect.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range IdentityFields(s) {
		c.seen[f] = true
	}
}

// IdentityFields returns the canonical, lowercase identity keys a
// snapshot carries.
func IdentityFields(s *prospect.Snapshot) []string {
	fields := []string{
		string(s.Platform) + ":" + strings.ToLower(s.Username),
	}
	if s.URL != "" {
		fields = append(fields, "url:"+strings.ToLower(s.URL))
	}
	if email, ok := emailx.Extract(s.Bio); ok {
		fields = append(fields, "email:"+email)
	}
	return fields
}

func (c *Controller) wasSeen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[key]
}

func (c *Controller) markSeen(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[key] = true
}
