// Package htmlutil provides HTML extraction heuristics for profile scraping.
package htmlutil

import (
	"html"
	"regexp"
	"strings"
)

// Title extracts the page title from HTML content.
func Title(htmlContent string) string {
	// Try og:title first: platforms put the display name there.
	if matches := ogTitlePattern.FindStringSubmatch(htmlContent); len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}

	if matches := titlePattern.FindStringSubmatch(htmlContent); len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}

	if matches := firstH1Pattern.FindStringSubmatch(htmlContent); len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}

	return ""
}

// Description extracts the meta description from HTML content.
func Description(htmlContent string) string {
	if matches := ogDescPattern.FindStringSubmatch(htmlContent); len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}

	if matches := descPattern.FindStringSubmatch(htmlContent); len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}

	return ""
}

// MetaProperty extracts the content of a meta tag by property name
// (e.g. "og:image"). Returns the empty string when absent.
func MetaProperty(htmlContent, property string) string {
	pattern := regexp.MustCompile(
		`(?i)<meta[^>]+property=["']` + regexp.QuoteMeta(property) + `["'][^>]+content=["']([^"']+)["']`)
	if matches := pattern.FindStringSubmatch(htmlContent); len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}
	return ""
}

// VisibleTextLength approximates how much human-readable text a page
// carries, after dropping scripts, styles and markup. Near-empty bodies
// are a signal that a render failed or an interstitial was served.
func VisibleTextLength(htmlContent string) int {
	content := scriptPattern.ReplaceAllString(htmlContent, "")
	content = stylePattern.ReplaceAllString(content, "")
	content = tagPattern.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)
	return len(strings.TrimSpace(multiSpacePattern.ReplaceAllString(content, " ")))
}

// Pre-compiled patterns for extraction.
var (
	titlePattern      = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
	ogTitlePattern    = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']+)["']`)
	firstH1Pattern    = regexp.MustCompile(`(?i)<h1[^>]*>([^<]+)</h1>`)
	descPattern       = regexp.MustCompile(`(?i)<meta[^>]+name=["']description["'][^>]+content=["']([^"']+)["']`)
	ogDescPattern     = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:description["'][^>]+content=["']([^"']+)["']`)
	scriptPattern     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	stylePattern      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	multiSpacePattern = regexp.MustCompile(`\s+`)
)
