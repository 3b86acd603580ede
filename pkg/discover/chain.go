package discover

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scoutline-dev/scoutline/pkg/htmlutil"
	"github.com/scoutline-dev/scoutline/pkg/pacing"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

const (
	// maxChainDepth bounds how far traversal walks from the seeds.
	maxChainDepth = 2
	// maxPerNode bounds how many connections one profile contributes.
	maxPerNode = 10
)

// ConnectionSource fetches the page a profile's outward connections
// appear on. The browser session's HTML method satisfies it.
type ConnectionSource interface {
	HTML(ctx context.Context, url string) (string, error)
}

// SeedSource supplies the accounts a traversal starts from. It is
// queried on every Discover call so handles admitted earlier in the run
// become seeds for later regions and strategy passes.
type SeedSource interface {
	Seeds(ctx context.Context) ([]prospect.Handle, error)
}

// StaticSeeds is a fixed, operator-supplied seed list.
type StaticSeeds []prospect.Handle

// Seeds implements SeedSource.
func (s StaticSeeds) Seeds(context.Context) ([]prospect.Handle, error) {
	return s, nil
}

// Chain discovers handles by breadth-first traversal of the social graph
// outward from seed accounts: operator-supplied ones plus prospects
// admitted by this or earlier runs. Termination is guaranteed by the
// depth bound, the per-node cap and the budget.
type Chain struct {
	source ConnectionSource
	seeds  SeedSource
	pacing *pacing.Group
	logger *slog.Logger
}

// NewChain creates a chain discovery strategy.
func NewChain(source ConnectionSource, seeds SeedSource, group *pacing.Group, logger *slog.Logger) *Chain {
	if seeds == nil {
		seeds = StaticSeeds(nil)
	}
	if group == nil {
		group = pacing.NewGroup()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{source: source, seeds: seeds, pacing: group, logger: logger}
}

// Name implements Strategy.
func (*Chain) Name() string { return "chain_traversal" }

// Discover walks the graph breadth-first from the current seed set.
func (c *Chain) Discover(ctx context.Context, region string, cfg *prospect.RunConfig, budget int) ([]prospect.Handle, error) {
	if budget <= 0 {
		return nil, nil
	}
	seeds, err := c.seeds.Seeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain seeds: %w", err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	col := newCollector(budget)
	visited := make(map[string]bool)

	type node struct {
		handle prospect.Handle
		depth  int
	}
	queue := make([]node, 0, len(seeds))
	for _, seed := range seeds {
		if platformConfigured(seed.Platform, cfg) {
			visited[seed.Key()] = true
			queue = append(queue, node{handle: seed})
		}
	}

	for len(queue) > 0 && !col.full() {
		if ctx.Err() != nil {
			return col.handles, ctx.Err()
		}
		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxChainDepth {
			continue
		}

		connections, err := c.connections(ctx, current.handle)
		if err != nil {
			// A dead node prunes its branch, not the traversal.
			c.logger.DebugContext(ctx, "chain node fetch failed",
				"handle", current.handle.Key(), "error", err)
			continue
		}

		for _, username := range connections {
			h := prospect.Handle{Platform: current.handle.Platform, Username: username, Region: region}
			if visited[h.Key()] {
				continue
			}
			visited[h.Key()] = true
			if col.add(h) {
				queue = append(queue, node{handle: h, depth: current.depth + 1})
			}
		}
	}
	return col.handles, nil
}

// connections fetches one profile's outward links, capped per node.
func (c *Chain) connections(ctx context.Context, h prospect.Handle) ([]string, error) {
	policy := c.pacing.For(string(h.Platform))
	if err := policy.BeforeAction(ctx, pacing.Navigate); err != nil {
		return nil, err
	}

	url := prospect.ProfileURL(h.Platform, h.Username)
	html, err := c.source.HTML(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch connections of %s: %w", h.Key(), err)
	}

	usernames := htmlutil.ProfileUsernames(html, string(h.Platform))
	filtered := make([]string, 0, maxPerNode)
	for _, username := range usernames {
		if username == h.Username {
			continue
		}
		filtered = append(filtered, username)
		if len(filtered) >= maxPerNode {
			break
		}
	}
	return filtered, nil
}

func platformConfigured(p prospect.Platform, cfg *prospect.RunConfig) bool {
	for _, configured := range cfg.Platforms {
		if configured == p {
			return true
		}
	}
	return false
}
