package discover

import (
	"context"
	"log/slog"
	"strings"

	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

// regionTerms maps a region code to locale-specific search terms that
// bias mining toward that market. Unlisted regions fall back to the
// lowercase region code itself.
var regionTerms = map[string][]string{
	"CZ": {"czech", "praha", "czechinfluencer"},
	"SK": {"slovakia", "bratislava", "slovenskyinfluencer"},
	"DE": {"deutschland", "berlin", "germaninfluencer"},
	"PL": {"polska", "warszawa", "polskiinfluencer"},
	"US": {"usa", "nyc", "losangeles"},
	"UK": {"london", "britishinfluencer", "ukcreator"},
	"FR": {"france", "paris", "frenchcreator"},
	"ES": {"espana", "madrid", "spanishinfluencer"},
	"IT": {"italia", "milano", "italianinfluencer"},
}

// Geo discovers handles by applying hashtag-timeline mining to a small
// fixed list of locale-specific terms for the region.
type Geo struct {
	hashtag *Hashtag
	logger  *slog.Logger
}

// NewGeo creates a geography-scoped mining strategy on top of an
// existing hashtag miner.
func NewGeo(hashtag *Hashtag, logger *slog.Logger) *Geo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Geo{hashtag: hashtag, logger: logger}
}

// Name implements Strategy.
func (*Geo) Name() string { return "geo_mining" }

// Discover mines each locale term on each configured platform, merging
// results up to the budget.
func (g *Geo) Discover(ctx context.Context, region string, cfg *prospect.RunConfig, budget int) ([]prospect.Handle, error) {
	if budget <= 0 {
		return nil, nil
	}

	terms := regionTerms[strings.ToUpper(region)]
	if len(terms) == 0 {
		terms = []string{strings.ToLower(region)}
	}

	c := newCollector(budget)
	for _, platform := range cfg.Platforms {
		for _, term := range terms {
			if c.full() {
				return c.handles, nil
			}
			remaining := budget - len(c.handles)
			handles, err := g.hashtag.MineTerm(ctx, platform, term, region, remaining)
			if err != nil {
				if ctx.Err() != nil {
					return c.handles, err
				}
				g.logger.InfoContext(ctx, "geo term mining failed, moving on",
					"platform", platform, "term", term, "error", err)
				continue
			}
			for _, h := range handles {
				c.add(h)
			}
		}
	}
	return c.handles, nil
}
