// Profile-link mining from arbitrary result markup.

package htmlutil

import (
	"net/url"
	"regexp"
	"strings"
)

// profilePatterns match direct platform profile URLs inside markup.
// Capture group 1 is the username.
var profilePatterns = map[string]*regexp.Regexp{
	"instagram": regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/([a-zA-Z0-9_.]{2,30})/?(?:["'?#\s<]|$)`),
	"tiktok":    regexp.MustCompile(`(?i)https?://(?:www\.)?tiktok\.com/@([a-zA-Z0-9_.]{2,24})/?(?:["'?#\s<]|$)`),
	"youtube":   regexp.MustCompile(`(?i)https?://(?:www\.)?youtube\.com/@([a-zA-Z0-9_.\-]{3,30})/?(?:["'?#\s<]|$)`),
}

// instagram paths that look like usernames but are site chrome.
var systemPaths = map[string]bool{
	"p": true, "reel": true, "reels": true, "stories": true, "explore": true,
	"direct": true, "accounts": true, "about": true, "legal": true,
	"privacy": true, "terms": true, "api": true, "developer": true,
	"tag": true, "tags": true, "discover": true, "channel": true,
	"watch": true, "shorts": true, "results": true, "feed": true,
	"music": true, "live": true, "upload": true, "foryou": true,
}

// ProfileUsernames extracts platform profile usernames from HTML content.
// It handles both direct links and redirect-wrapper links whose target is
// carried in a query parameter. Order of first appearance is preserved.
func ProfileUsernames(htmlContent, platform string) []string {
	pattern, ok := profilePatterns[platform]
	if !ok {
		return nil
	}

	// Redirect wrappers hide the target behind URL encoding; decode them
	// in place so the direct pattern can see through.
	content := htmlContent + " " + strings.Join(UnwrapRedirects(htmlContent), " ")

	var usernames []string
	seen := make(map[string]bool)
	for _, m := range pattern.FindAllStringSubmatch(content, -1) {
		username := m[1]
		lower := strings.ToLower(username)
		if seen[lower] || systemPaths[lower] {
			continue
		}
		seen[lower] = true
		usernames = append(usernames, username)
	}
	return usernames
}

// wrapperParams are query parameters search surfaces use to carry the
// real destination of a result link.
var wrapperParams = []string{"uddg", "q", "url", "u"}

var wrappedLinkPattern = regexp.MustCompile(`(?i)href=["']([^"']+)["']`)

// UnwrapRedirects decodes redirect-wrapper links found in markup and
// returns the wrapped destination URLs.
func UnwrapRedirects(htmlContent string) []string {
	var targets []string
	for _, m := range wrappedLinkPattern.FindAllStringSubmatch(htmlContent, -1) {
		if target := UnwrapRedirect(m[1]); target != "" {
			targets = append(targets, target)
		}
	}
	return targets
}

// UnwrapRedirect extracts the destination from a single redirect-wrapper
// URL, or returns "" when the link is not a recognizable wrapper.
func UnwrapRedirect(link string) string {
	// Wrappers are often HTML-escaped in markup.
	link = strings.ReplaceAll(link, "&amp;", "&")

	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, param := range wrapperParams {
		target := q.Get(param)
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			return target
		}
		// Some wrappers percent-encode the scheme as well.
		if decoded, err := url.QueryUnescape(target); err == nil &&
			(strings.HasPrefix(decoded, "http://") || strings.HasPrefix(decoded, "https://")) {
			return decoded
		}
	}
	return ""
}
