// Package tiktok provides TikTok profile fetching.
package tiktok

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scoutline-dev/scoutline/pkg/auth"
	"github.com/scoutline-dev/scoutline/pkg/httpcache"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

const platform = prospect.TikTok

// Match returns true if the URL is a TikTok profile URL.
func Match(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	return strings.Contains(lower, "tiktok.com/@")
}

// Client handles TikTok requests.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cookies        map[string]string
	cache          httpcache.Cacher
	logger         *slog.Logger
	browserCookies bool
}

// WithCookies sets explicit cookie values.
func WithCookies(cookies map[string]string) Option {
	return func(c *config) { c.cookies = cookies }
}

// WithBrowserCookies enables reading cookies from browser stores.
func WithBrowserCookies() Option {
	return func(c *config) { c.browserCookies = true }
}

// WithHTTPCache sets the HTTP cache.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// New creates a TikTok client.
// Cookies are optional and will be used if provided via: WithCookies > environment variables > browser.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	var sources []auth.Source
	if len(cfg.cookies) > 0 {
		sources = append(sources, auth.NewStaticSource(cfg.cookies))
	}
	sources = append(sources, auth.EnvSource{})
	if cfg.browserCookies {
		sources = append(sources, auth.NewBrowserSource(cfg.logger))
	}

	cookies, err := auth.ChainSources(ctx, string(platform), sources...)
	if err != nil {
		cfg.logger.Debug("cookie retrieval failed, continuing without auth", "error", err)
	}

	var jar http.CookieJar
	if len(cookies) > 0 {
		jar, err = auth.NewCookieJar("tiktok.com", cookies)
		if err != nil {
			return nil, fmt.Errorf("cookie jar creation failed: %w", err)
		}
		cfg.logger.InfoContext(ctx, "tiktok client created with cookies", "cookie_count", len(cookies))
	}

	return &Client{
		httpClient: &http.Client{Jar: jar, Timeout: 10 * time.Second},
		cache:      cfg.cache,
		logger:     cfg.logger,
	}, nil
}

// Fetch retrieves a TikTok profile snapshot.
func (c *Client) Fetch(ctx context.Context, username string) (*prospect.Snapshot, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", prospect.ErrProfileNotFound)
	}

	profileURL := prospect.ProfileURL(platform, username)
	c.logger.InfoContext(ctx, "fetching tiktok profile", "url", profileURL, "username", username)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}

	setHeaders(req)

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		if httpcache.IsRateLimited(err) {
			return nil, fmt.Errorf("tiktok profile page: %w", prospect.ErrRateLimited)
		}
		if httpcache.IsNotFound(err) {
			return nil, fmt.Errorf("tiktok profile page: %w", prospect.ErrProfileNotFound)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	s, err := Parse(string(body), username)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "tiktok profile parsed",
		"username", s.Username,
		"followers", s.Followers,
		"private", s.Private)
	return s, nil
}

func setHeaders(req *http.Request) {
	// User-Agent matching Chrome 120 on macOS
	userAgent := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
}

// universalDataPattern matches the rehydration script tag:
// <script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">{...}</script>
var universalDataPattern = regexp.MustCompile(
	`<script[^>]*id="__UNIVERSAL_DATA_FOR_REHYDRATION__"[^>]*>([^<]+)</script>`)

// Parse extracts a profile snapshot from TikTok profile page HTML. The page
// may come from a structured fetch or from a rendered browser session.
func Parse(html, username string) (*prospect.Snapshot, error) {
	m := universalDataPattern.FindStringSubmatch(html)
	if len(m) < 2 {
		return nil, fmt.Errorf("%w: no rehydration data in page", prospect.ErrProfileNotFound)
	}

	userInfo := gjson.Get(m[1], `__DEFAULT_SCOPE__.webapp\.user-detail.userInfo`)
	user := userInfo.Get("user")
	if !user.Get("uniqueId").Exists() {
		// statusCode 10221 marks a deleted or never-existing account.
		if code := gjson.Get(m[1], `__DEFAULT_SCOPE__.webapp\.user-detail.statusCode`).Int(); code != 0 {
			return nil, fmt.Errorf("%w: status code %d", prospect.ErrProfileNotFound, code)
		}
		return nil, prospect.ErrProfileNotFound
	}

	stats := userInfo.Get("stats")
	s := &prospect.Snapshot{
		Platform:  platform,
		Username:  user.Get("uniqueId").String(),
		Name:      user.Get("nickname").String(),
		Bio:       user.Get("signature").String(),
		AvatarURL: user.Get("avatarLarger").String(),
		Followers: int(stats.Get("followerCount").Int()),
		Following: int(stats.Get("followingCount").Int()),
		Posts:     int(stats.Get("videoCount").Int()),
		Verified:  user.Get("verified").Bool(),
		Private:   user.Get("privateAccount").Bool(),
	}
	s.URL = prospect.ProfileURL(platform, s.Username)
	if s.AvatarURL == "" {
		s.AvatarURL = user.Get("avatarMedium").String()
	}
	if s.Username == "" {
		s.Username = username
	}

	s.Data = prospect.TikTokData{
		UserID:     user.Get("id").String(),
		Hearts:     int(stats.Get("heartCount").Int()),
		Videos:     int(stats.Get("videoCount").Int()),
		Commercial: user.Get("commerceUserInfo.commerceUser").Bool(),
	}

	return s, nil
}

// ExtractUsername extracts the username from a TikTok URL or @username string.
func ExtractUsername(s string) string {
	if strings.Contains(s, "/") {
		re := regexp.MustCompile(`tiktok\.com/@([^/?]+)`)
		if m := re.FindStringSubmatch(s); len(m) > 1 {
			return m[1]
		}
		return ""
	}
	return strings.TrimPrefix(s, "@")
}
