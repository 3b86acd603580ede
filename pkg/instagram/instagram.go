// Package instagram provides Instagram profile fetching via anonymous API.
package instagram

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scoutline-dev/scoutline/pkg/auth"
	"github.com/scoutline-dev/scoutline/pkg/htmlutil"
	"github.com/scoutline-dev/scoutline/pkg/httpcache"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

const platform = prospect.Instagram

// Match returns true if the URL is an Instagram profile URL.
func Match(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	if !strings.Contains(lower, "instagram.com/") {
		return false
	}
	return ExtractUsername(urlStr) != ""
}

var usernamePattern = regexp.MustCompile(`(?i)instagram\.com/([a-zA-Z0-9_.]+)`)

// systemPaths are instagram.com path segments that are not profiles.
var systemPaths = map[string]bool{
	"p": true, "reel": true, "reels": true, "stories": true,
	"explore": true, "direct": true, "accounts": true,
	"about": true, "legal": true, "privacy": true,
	"terms": true, "api": true, "developer": true,
}

// ExtractUsername extracts the username from an Instagram profile URL,
// or returns "" if the URL points at a non-profile path.
func ExtractUsername(urlStr string) string {
	matches := usernamePattern.FindStringSubmatch(urlStr)
	if len(matches) < 2 {
		return ""
	}
	username := matches[1]
	if systemPaths[strings.ToLower(username)] {
		return ""
	}
	return username
}

// Client handles Instagram requests.
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

// New creates an Instagram client.
// Cookies are optional and raise the anonymous API's tolerance:
// WithCookies > environment variables > browser.
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
		jar, err = auth.NewCookieJar("instagram.com", cookies)
		if err != nil {
			return nil, fmt.Errorf("cookie jar creation failed: %w", err)
		}
		cfg.logger.InfoContext(ctx, "instagram client created with cookies", "cookie_count", len(cookies))
	}

	return &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // needed for corporate proxies
			},
		},
		cache:  cfg.cache,
		logger: cfg.logger,
	}, nil
}

// Fetch retrieves an Instagram profile snapshot using the anonymous API.
func (c *Client) Fetch(ctx context.Context, username string) (*prospect.Snapshot, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", prospect.ErrProfileNotFound)
	}

	c.logger.InfoContext(ctx, "fetching instagram profile", "username", username)

	apiURL := fmt.Sprintf("https://i.instagram.com/api/v1/users/web_profile_info/?username=%s", username)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Required header for anonymous access
	req.Header.Set("X-Ig-App-Id", "936619743392459")
	req.Header.Set("User-Agent", httpcache.UserAgent)

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		if httpcache.IsRateLimited(err) {
			return nil, fmt.Errorf("instagram API: %w", prospect.ErrRateLimited)
		}
		if httpcache.IsNotFound(err) {
			return nil, fmt.Errorf("instagram API: %w", prospect.ErrProfileNotFound)
		}
		return nil, fmt.Errorf("fetch instagram API: %w", err)
	}

	return c.parseResponse(body)
}

// IsPrivate reports whether an account is private. The anonymous API
// includes the privacy flag in the same payload, so this shares Fetch's
// cache entry.
func (c *Client) IsPrivate(ctx context.Context, username string) (bool, error) {
	s, err := c.Fetch(ctx, username)
	if err != nil {
		return false, err
	}
	return s.Private, nil
}

func (c *Client) parseResponse(data []byte) (*prospect.Snapshot, error) {
	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	user := resp.Data.User
	if user.Username == "" {
		return nil, prospect.ErrProfileNotFound
	}

	s := &prospect.Snapshot{
		Platform:  platform,
		Username:  user.Username,
		URL:       prospect.ProfileURL(platform, user.Username),
		Name:      user.FullName,
		Bio:       user.Biography,
		AvatarURL: user.ProfilePicURLHD,
		Followers: user.EdgeFollowedBy.Count,
		Following: user.EdgeFollow.Count,
		Posts:     user.EdgeOwnerToTimelineMedia.Count,
		Verified:  user.IsVerified,
		Private:   user.IsPrivate,
	}

	if s.AvatarURL == "" {
		s.AvatarURL = user.ProfilePicURL
	}

	igData := &prospect.InstagramData{
		UserID:       user.ID,
		ExternalURL:  user.ExternalURL,
		Category:     user.CategoryName,
		IsBusiness:   user.IsBusinessAccount || user.IsProfessionalAccount,
		OnThreads:    user.ShowTextPostAppBadge,
		ProfilePicHD: user.ProfilePicURLHD,
	}
	if igData.Category == "" && user.BusinessCategoryName != "None" {
		igData.Category = user.BusinessCategoryName
	}
	for _, link := range user.BioLinks {
		if link.URL != "" && link.URL != user.ExternalURL {
			igData.BioLinks = append(igData.BioLinks, link.URL)
		}
	}
	s.Data = *igData

	c.logger.Debug("parsed instagram profile",
		"username", s.Username,
		"name", s.Name,
		"verified", s.Verified,
		"followers", s.Followers,
	)

	return s, nil
}

var (
	renderedUserPattern = regexp.MustCompile(
		`"user":(\{"ai_agent_type":[^<]+?|\{"biography":[^<]+?),"viewer"`)
	followerMetaPattern = regexp.MustCompile(
		`([\d,.KMB]+)\s+Followers?,\s+([\d,.KMB]+)\s+Following,\s+([\d,.KMB]+)\s+Posts?`)
)

// ParseRendered extracts a profile snapshot from rendered profile page HTML,
// for when the anonymous API is unavailable.
func ParseRendered(html, username string) (*prospect.Snapshot, error) {
	// Rendered pages embed the user object in an inline script.
	if m := renderedUserPattern.FindStringSubmatch(html); len(m) > 1 && gjson.Valid(m[1]) {
		user := gjson.Parse(m[1])
		if user.Get("username").Exists() {
			return snapshotFromJSON(user), nil
		}
	}

	// Fall back to meta tags: "1,234 Followers, 56 Following, 78 Posts".
	desc := htmlutil.MetaProperty(html, "og:description")
	if desc == "" {
		return nil, prospect.ErrProfileNotFound
	}

	s := &prospect.Snapshot{
		Platform: platform,
		Username: username,
		URL:      prospect.ProfileURL(platform, username),
		Name:     cleanTitle(htmlutil.Title(html)),
	}
	if m := followerMetaPattern.FindStringSubmatch(desc); len(m) > 3 {
		s.Followers = prospect.ParseCount(m[1])
		s.Following = prospect.ParseCount(m[2])
		s.Posts = prospect.ParseCount(m[3])
	}
	if idx := strings.Index(desc, "- "); idx != -1 {
		s.Bio = strings.TrimSpace(desc[idx+2:])
	}
	return s, nil
}

func snapshotFromJSON(user gjson.Result) *prospect.Snapshot {
	username := user.Get("username").String()
	return &prospect.Snapshot{
		Platform:  platform,
		Username:  username,
		URL:       prospect.ProfileURL(platform, username),
		Name:      user.Get("full_name").String(),
		Bio:       user.Get("biography").String(),
		AvatarURL: user.Get("profile_pic_url_hd").String(),
		Followers: int(user.Get("edge_followed_by.count").Int()),
		Following: int(user.Get("edge_follow.count").Int()),
		Posts:     int(user.Get("edge_owner_to_timeline_media.count").Int()),
		Verified:  user.Get("is_verified").Bool(),
		Private:   user.Get("is_private").Bool(),
	}
}

func cleanTitle(title string) string {
	title = strings.TrimSuffix(title, " • Instagram photos and videos")
	if idx := strings.Index(title, " (@"); idx != -1 {
		title = title[:idx]
	}
	return strings.TrimSpace(title)
}

// apiResponse represents the Instagram API response structure.
type apiResponse struct {
	Data struct {
		User userInfo `json:"user"`
	} `json:"data"`
}

type userInfo struct {
	ID                       string    `json:"id"`
	Username                 string    `json:"username"`
	FullName                 string    `json:"full_name"`
	Biography                string    `json:"biography"`
	ProfilePicURL            string    `json:"profile_pic_url"`
	ProfilePicURLHD          string    `json:"profile_pic_url_hd"`
	ExternalURL              string    `json:"external_url"`
	CategoryName             string    `json:"category_name"`
	BusinessCategoryName     string    `json:"business_category_name"`
	BioLinks                 []bioLink `json:"bio_links"`
	EdgeFollowedBy           count     `json:"edge_followed_by"`
	EdgeFollow               count     `json:"edge_follow"`
	EdgeOwnerToTimelineMedia count     `json:"edge_owner_to_timeline_media"`
	ShowTextPostAppBadge     bool      `json:"show_text_post_app_badge"`
	IsVerified               bool      `json:"is_verified"`
	IsBusinessAccount        bool      `json:"is_business_account"`
	IsProfessionalAccount    bool      `json:"is_professional_account"`
	IsPrivate                bool      `json:"is_private"`
}

type count struct {
	Count int `json:"count"`
}

type bioLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
