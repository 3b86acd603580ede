// Package discover produces candidate handles for a run. Strategies are
// independent, restartable and tolerate empty results; the run controller
// chooses their order and budget.
package discover

import (
	"context"

	"github.com/scoutline-dev/scoutline/pkg/htmlutil"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

// Strategy yields candidate handles for one region. A call is finite,
// holds no required state across invocations, and returns best-first
// where the source provides a relevance signal. Zero handles is a valid,
// non-error outcome.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, region string, cfg *prospect.RunConfig, budget int) ([]prospect.Handle, error)
}

// collector accumulates handles, dropping in-batch duplicates and
// enforcing the caller's budget.
type collector struct {
	budget  int
	seen    map[string]bool
	handles []prospect.Handle
}

func newCollector(budget int) *collector {
	return &collector{budget: budget, seen: make(map[string]bool)}
}

// add records a handle. It returns true if the handle was new.
func (c *collector) add(h prospect.Handle) bool {
	if c.full() {
		return false
	}
	key := h.Key()
	if c.seen[key] {
		return false
	}
	c.seen[key] = true
	c.handles = append(c.handles, h)
	return true
}

func (c *collector) full() bool {
	return len(c.handles) >= c.budget
}

// harvestUsernames mines profile handles for one platform out of raw
// markup and records them. Returns the number of new handles.
func harvestUsernames(html string, platform prospect.Platform, region string, c *collector) int {
	before := len(c.handles)
	for _, username := range htmlutil.ProfileUsernames(html, string(platform)) {
		c.add(prospect.Handle{Platform: platform, Username: username, Region: region})
	}
	return len(c.handles) - before
}
