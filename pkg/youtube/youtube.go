// Package youtube fetches YouTube channel profile data.
package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scoutline-dev/scoutline/pkg/htmlutil"
	"github.com/scoutline-dev/scoutline/pkg/httpcache"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

const platform = prospect.YouTube

// Match returns true if the URL is a YouTube channel/user URL.
func Match(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	return strings.Contains(lower, "youtube.com/") &&
		(strings.Contains(lower, "/@") ||
			strings.Contains(lower, "/channel/") ||
			strings.Contains(lower, "/c/") ||
			strings.Contains(lower, "/user/"))
}

// Client handles YouTube requests.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache  httpcache.Cacher
	logger *slog.Logger
}

// WithHTTPCache sets the HTTP cache.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// New creates a YouTube client.
func New(_ context.Context, opts ...Option) (*Client, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cfg.cache,
		logger:     cfg.logger,
	}, nil
}

// Fetch retrieves a YouTube channel snapshot.
func (c *Client) Fetch(ctx context.Context, username string) (*prospect.Snapshot, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", prospect.ErrProfileNotFound)
	}

	channelURL := prospect.ProfileURL(platform, username)
	c.logger.InfoContext(ctx, "fetching youtube channel", "url", channelURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, channelURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		if httpcache.IsRateLimited(err) {
			return nil, fmt.Errorf("youtube channel page: %w", prospect.ErrRateLimited)
		}
		if httpcache.IsNotFound(err) {
			return nil, fmt.Errorf("youtube channel page: %w", prospect.ErrProfileNotFound)
		}
		return nil, err
	}

	return Parse(string(body), username)
}

var (
	initialDataPattern = regexp.MustCompile(`(?s)var ytInitialData\s*=\s*(\{.+?\});</script>`)
	subPattern         = regexp.MustCompile(`([\d.,]+[KMB]?)\s*subscribers`)
	videoPattern       = regexp.MustCompile(`([\d,]+)\s*videos`)
	avatarPattern      = regexp.MustCompile(`"avatar":\{"thumbnails":\[\{"url":"([^"]+)"`)
)

// Parse extracts a channel snapshot from channel page HTML.
func Parse(html, username string) (*prospect.Snapshot, error) {
	s := &prospect.Snapshot{
		Platform: platform,
		Username: username,
		URL:      prospect.ProfileURL(platform, username),
	}

	data := prospect.YouTubeData{}
	if m := initialDataPattern.FindStringSubmatch(html); len(m) > 1 && gjson.Valid(m[1]) {
		meta := gjson.Get(m[1], "metadata.channelMetadataRenderer")
		s.Name = meta.Get("title").String()
		s.Bio = meta.Get("description").String()
		s.AvatarURL = meta.Get("avatar.thumbnails.0.url").String()
		data.ChannelID = meta.Get("externalId").String()
		data.Country = gjson.Get(m[1], "microformat.microformatDataRenderer.country").String()
	}

	// Meta tags cover pages where the initial data blob is missing or trimmed.
	if s.Name == "" {
		s.Name = htmlutil.Title(html)
		if idx := strings.Index(s.Name, " - YouTube"); idx != -1 {
			s.Name = strings.TrimSpace(s.Name[:idx])
		}
	}
	if s.Bio == "" {
		bio := htmlutil.Description(html)
		if !isDefaultBio(bio) {
			s.Bio = bio
		}
	}
	if s.AvatarURL == "" {
		if m := avatarPattern.FindStringSubmatch(html); len(m) > 1 {
			s.AvatarURL = m[1]
		}
	}

	if s.Name == "" && s.AvatarURL == "" {
		return nil, prospect.ErrProfileNotFound
	}

	// Channels render "1.2M subscribers" and "340 videos" as display strings.
	if m := subPattern.FindStringSubmatch(html); len(m) > 1 {
		s.Followers = prospect.ParseCount(m[1])
	}
	if m := videoPattern.FindStringSubmatch(html); len(m) > 1 {
		s.Posts = prospect.ParseCount(m[1])
		data.Videos = s.Posts
	}

	s.Data = data
	return s, nil
}

// isDefaultBio returns true if the bio is YouTube's default description.
func isDefaultBio(bio string) bool {
	return strings.EqualFold(strings.TrimSpace(bio),
		"share your videos with friends, family, and the world")
}

// ExtractUsername extracts the handle or channel identifier from a YouTube URL.
func ExtractUsername(s string) string {
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")

	patterns := []string{
		`youtube\.com/@([^/?#]+)`,
		`youtube\.com/c/([^/?#]+)`,
		`youtube\.com/user/([^/?#]+)`,
		`youtube\.com/channel/([^/?#]+)`,
	}
	for _, p := range patterns {
		if m := regexp.MustCompile(p).FindStringSubmatch(s); len(m) > 1 {
			return m[1]
		}
	}
	if strings.Contains(s, "/") {
		return ""
	}
	return strings.TrimPrefix(s, "@")
}
