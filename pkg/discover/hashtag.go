package discover

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/scoutline-dev/scoutline/pkg/pacing"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

const (
	// maxScrollSteps bounds infinite-scroll harvesting per tag surface.
	maxScrollSteps = 10
	// perHashtagTarget caps handles harvested from one tag.
	perHashtagTarget = 40
)

// Page is one live timeline surface that can be scrolled and serialized.
type Page interface {
	Scroll(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	Close()
}

// PageOpener opens rendered pages. The browser session implements it.
type PageOpener interface {
	OpenPage(ctx context.Context, url string) (Page, error)
}

// Hashtag discovers handles by loading a tag's timeline surface and
// repeatedly triggering infinite scroll, harvesting newly revealed
// profile links after each step.
type Hashtag struct {
	opener PageOpener
	pacing *pacing.Group
	logger *slog.Logger
}

// NewHashtag creates a hashtag-timeline mining strategy.
func NewHashtag(opener PageOpener, group *pacing.Group, logger *slog.Logger) *Hashtag {
	if group == nil {
		group = pacing.NewGroup()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hashtag{opener: opener, pacing: group, logger: logger}
}

// Name implements Strategy.
func (*Hashtag) Name() string { return "hashtag_timeline" }

// Discover mines each configured hashtag on each configured platform.
func (h *Hashtag) Discover(ctx context.Context, region string, cfg *prospect.RunConfig, budget int) ([]prospect.Handle, error) {
	if budget <= 0 || len(cfg.Hashtags) == 0 {
		return nil, nil
	}
	c := newCollector(budget)

	for _, platform := range cfg.Platforms {
		for _, tag := range cfg.Hashtags {
			if c.full() {
				return c.handles, nil
			}
			if err := h.mineTag(ctx, platform, tag, region, c); err != nil {
				if ctx.Err() != nil {
					return c.handles, err
				}
				// One broken tag surface must not sink the others.
				h.logger.InfoContext(ctx, "hashtag mining failed, moving on",
					"platform", platform, "tag", tag, "error", err)
			}
		}
	}
	return c.handles, nil
}

// MineTerm harvests one search term as if it were a hashtag. The
// geography strategy reuses it for locale-specific terms.
func (h *Hashtag) MineTerm(ctx context.Context, platform prospect.Platform, term, region string, budget int) ([]prospect.Handle, error) {
	c := newCollector(budget)
	if err := h.mineTag(ctx, platform, term, region, c); err != nil {
		return c.handles, err
	}
	return c.handles, nil
}

func (h *Hashtag) mineTag(ctx context.Context, platform prospect.Platform, tag, region string, c *collector) error {
	tagURL := hashtagURL(platform, tag)
	if tagURL == "" {
		return nil
	}
	policy := h.pacing.For(string(platform))

	if err := policy.BeforeAction(ctx, pacing.Navigate); err != nil {
		return err
	}
	page, err := h.opener.OpenPage(ctx, tagURL)
	if err != nil {
		return fmt.Errorf("open tag surface %s: %w", tagURL, err)
	}
	defer page.Close()

	// First harvest takes the "top" set the surface shows before any
	// scrolling.
	tagTotal := 0
	added, err := h.harvestPage(ctx, page, platform, region, c)
	if err != nil {
		return err
	}
	tagTotal += added

	for step := 0; step < maxScrollSteps; step++ {
		if c.full() || tagTotal >= perHashtagTarget {
			break
		}
		if err := policy.BeforeAction(ctx, pacing.Read); err != nil {
			return err
		}
		if err := page.Scroll(ctx); err != nil {
			return fmt.Errorf("scroll tag surface: %w", err)
		}

		added, err := h.harvestPage(ctx, page, platform, region, c)
		if err != nil {
			return err
		}
		if added == 0 {
			// The surface stopped revealing new handles: exhausted.
			break
		}
		tagTotal += added
	}

	h.logger.DebugContext(ctx, "hashtag surface mined",
		"platform", platform, "tag", tag, "handles", tagTotal)
	return nil
}

func (h *Hashtag) harvestPage(ctx context.Context, page Page, platform prospect.Platform, region string, c *collector) (int, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return 0, fmt.Errorf("serialize tag surface: %w", err)
	}
	return harvestUsernames(html, platform, region, c), nil
}

// hashtagURL builds the tag timeline URL for a platform.
func hashtagURL(platform prospect.Platform, tag string) string {
	tag = url.PathEscape(strings.TrimPrefix(tag, "#"))
	switch platform {
	case prospect.Instagram:
		return "https://www.instagram.com/explore/tags/" + tag + "/"
	case prospect.TikTok:
		return "https://www.tiktok.com/tag/" + tag
	case prospect.YouTube:
		return "https://www.youtube.com/hashtag/" + tag
	default:
		return ""
	}
}
