package discover

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/scoutline-dev/scoutline/pkg/htmlutil"
	"github.com/scoutline-dev/scoutline/pkg/httpcache"
	"github.com/scoutline-dev/scoutline/pkg/pacing"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

const (
	// defaultSearchURL is an HTML-only search surface that tolerates
	// automated paging better than the scripted frontends.
	defaultSearchURL = "https://html.duckduckgo.com/html/"
	maxSearchPages   = 5
	resultsPerPage   = 30
)

// Search discovers handles by issuing paginated keyword queries to an
// external search surface and mining profile links from the result markup.
type Search struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	pacing     *pacing.Group
	logger     *slog.Logger
	searchURL  string
}

// SearchOption configures a Search strategy.
type SearchOption func(*Search)

// WithSearchURL overrides the search surface endpoint.
func WithSearchURL(u string) SearchOption {
	return func(s *Search) { s.searchURL = u }
}

// WithSearchCache sets the HTTP cache.
func WithSearchCache(cache httpcache.Cacher) SearchOption {
	return func(s *Search) { s.cache = cache }
}

// WithSearchPacing sets the shared pacing group.
func WithSearchPacing(group *pacing.Group) SearchOption {
	return func(s *Search) { s.pacing = group }
}

// WithSearchLogger sets a custom logger.
func WithSearchLogger(logger *slog.Logger) SearchOption {
	return func(s *Search) { s.logger = logger }
}

// NewSearch creates a keyword search discovery strategy.
func NewSearch(opts ...SearchOption) *Search {
	s := &Search{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		pacing:     pacing.NewGroup(),
		logger:     slog.Default(),
		searchURL:  defaultSearchURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Strategy.
func (*Search) Name() string { return "keyword_search" }

// Discover issues one query per configured platform and pages through
// results until a page yields nothing new, the page ceiling is hit, or
// the budget is filled.
func (s *Search) Discover(ctx context.Context, region string, cfg *prospect.RunConfig, budget int) ([]prospect.Handle, error) {
	if budget <= 0 {
		return nil, nil
	}
	c := newCollector(budget)
	policy := s.pacing.For("search")

	for _, platform := range cfg.Platforms {
		if c.full() {
			break
		}
		query := buildQuery(platform, region, cfg)

		for page := 0; page < maxSearchPages && !c.full(); page++ {
			if err := policy.BeforeAction(ctx, pacing.Read); err != nil {
				return c.handles, err
			}

			body, err := s.fetchPage(ctx, query, page)
			if err != nil {
				if httpcache.IsRateLimited(err) {
					if berr := policy.OnRateLimited(ctx); berr != nil {
						return c.handles, berr
					}
					continue
				}
				s.logger.InfoContext(ctx, "search page failed, moving on",
					"platform", platform, "page", page, "error", err)
				break
			}
			policy.OnSuccess()

			added := s.harvest(body, platform, region, c)
			s.logger.DebugContext(ctx, "search page harvested",
				"platform", platform, "page", page, "new_handles", added)
			if added == 0 {
				break
			}
		}
	}
	return c.handles, nil
}

// buildQuery biases a site-scoped query toward the run's topics and region.
func buildQuery(platform prospect.Platform, region string, cfg *prospect.RunConfig) string {
	terms := make([]string, 0, len(cfg.Keywords)+len(cfg.Hashtags)+2)
	terms = append(terms, "site:"+platformDomain(platform))
	terms = append(terms, cfg.Keywords...)
	for _, tag := range cfg.Hashtags {
		terms = append(terms, "#"+strings.TrimPrefix(tag, "#"))
	}
	if region != "" {
		terms = append(terms, region)
	}
	return strings.Join(terms, " ")
}

func platformDomain(p prospect.Platform) string {
	switch p {
	case prospect.Instagram:
		return "instagram.com"
	case prospect.TikTok:
		return "tiktok.com"
	case prospect.YouTube:
		return "youtube.com"
	default:
		return ""
	}
}

func (s *Search) fetchPage(ctx context.Context, query string, page int) ([]byte, error) {
	params := url.Values{"q": {query}}
	if page > 0 {
		params.Set("s", strconv.Itoa(page*resultsPerPage))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.searchURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	return httpcache.FetchURL(ctx, s.cache, s.httpClient, req, s.logger)
}

// harvest mines profile handles from one result page: anchor hrefs first
// (cheap, precise), then the raw markup for links the DOM walk missed
// (wrapped redirects, inline JSON). Returns the number of new handles.
func (s *Search) harvest(body []byte, platform prospect.Platform, region string, c *collector) int {
	before := len(c.handles)

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body))); err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			if target := htmlutil.UnwrapRedirect(href); target != "" {
				href = target
			}
			for _, username := range htmlutil.ProfileUsernames(href, string(platform)) {
				c.add(prospect.Handle{Platform: platform, Username: username, Region: region})
			}
		})
	}

	for _, username := range htmlutil.ProfileUsernames(string(body), string(platform)) {
		c.add(prospect.Handle{Platform: platform, Username: username, Region: region})
	}
	return len(c.handles) - before
}
