package resolver

import (
	"fmt"
	"strings"

	"github.com/scoutline-dev/scoutline/pkg/htmlutil"
	"github.com/scoutline-dev/scoutline/pkg/instagram"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
	"github.com/scoutline-dev/scoutline/pkg/tiktok"
	"github.com/scoutline-dev/scoutline/pkg/youtube"
)

// minVisibleText is the smallest visible-text size a real profile page
// produces; anything below it is an interstitial or a failed render.
const minVisibleText = 200

// notFoundSignatures mark deleted, suspended or never-existing accounts.
var notFoundSignatures = []string{
	"sorry, this page isn't available",
	"page not found",
	"couldn't find this account",
	"this account doesn't exist",
	"user not found",
	"404 not found",
	"this channel does not exist",
}

// throttleSignatures mark rate limiting and bot interstitials.
var throttleSignatures = []string{
	"too many requests",
	"rate limit",
	"try again later",
	"verify you are human",
	"unusual traffic",
	"captcha",
	"access denied",
	"temporarily blocked",
}

// platformMarkers are strings a genuine profile page of each platform
// always carries somewhere in its markup.
var platformMarkers = map[prospect.Platform][]string{
	prospect.Instagram: {"instagram"},
	prospect.TikTok:    {"tiktok"},
	prospect.YouTube:   {"youtube", "ytinitialdata"},
}

// QuickValidate rejects rendered content before expensive extraction:
// known error pages resolve as not-found, throttle pages as rate-limited,
// and pages that do not minimally resemble a profile as not-found.
func QuickValidate(html string, platform prospect.Platform) error {
	lower := strings.ToLower(html)

	for _, sig := range throttleSignatures {
		if strings.Contains(lower, sig) {
			return fmt.Errorf("throttle signature %q: %w", sig, prospect.ErrRateLimited)
		}
	}
	for _, sig := range notFoundSignatures {
		if strings.Contains(lower, sig) {
			return fmt.Errorf("error signature %q: %w", sig, prospect.ErrProfileNotFound)
		}
	}

	marked := false
	for _, marker := range platformMarkers[platform] {
		if strings.Contains(lower, marker) {
			marked = true
			break
		}
	}
	if !marked {
		return fmt.Errorf("no %s markers in page: %w", platform, prospect.ErrProfileNotFound)
	}

	if htmlutil.VisibleTextLength(html) < minVisibleText {
		return fmt.Errorf("near-empty page body: %w", prospect.ErrProfileNotFound)
	}
	return nil
}

// parseRendered dispatches rendered-page extraction to the platform's
// parser.
func parseRendered(html string, platform prospect.Platform, username string) (*prospect.Snapshot, error) {
	switch platform {
	case prospect.Instagram:
		return instagram.ParseRendered(html, username)
	case prospect.TikTok:
		return tiktok.Parse(html, username)
	case prospect.YouTube:
		return youtube.Parse(html, username)
	default:
		return nil, fmt.Errorf("no rendered parser for platform %s", platform)
	}
}
