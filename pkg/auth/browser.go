package auth

import (
	"context"
	"log/slog"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register all browser cookie stores
)

// platformDomains maps platform names to their cookie domains.
var platformDomains = map[string]string{
	"instagram": "instagram.com",
	"tiktok":    "tiktok.com",
	"youtube":   "youtube.com",
}

// platformEssentialCookies lists the cookie names that make a session usable.
var platformEssentialCookies = map[string][]string{
	"instagram": {"sessionid", "csrftoken"},
	"tiktok":    {"sessionid"},
	"youtube":   {"SID"},
}

// BrowserSource reads cookies from local browser cookie stores via kooky.
type BrowserSource struct {
	logger *slog.Logger
}

// NewBrowserSource creates a new browser cookie source.
func NewBrowserSource(logger *slog.Logger) *BrowserSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{logger: logger}
}

// Cookies returns cookies for the given platform from browser stores.
func (s *BrowserSource) Cookies(ctx context.Context, platform string) (map[string]string, error) {
	domain, ok := platformDomains[platform]
	if !ok {
		return nil, nil //nolint:nilnil // no cookies for unknown platform is not an error
	}

	s.logger.DebugContext(ctx, "reading browser cookies", "platform", platform, "domain", domain)

	kookies, err := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(domain))
	if err != nil {
		s.logger.Debug("failed to read browser cookies", "platform", platform, "error", err)
		return nil, nil //nolint:nilnil // unreadable stores degrade to anonymous access
	}

	cookies := make(map[string]string)
	for _, k := range kookies {
		cookies[k.Name] = k.Value
	}

	if !hasEssential(platform, cookies) {
		return nil, nil //nolint:nilnil // partial cookies are useless, fall through the chain
	}

	s.logger.DebugContext(ctx, "browser cookies found", "platform", platform, "count", len(cookies))
	return cookies, nil
}

func hasEssential(platform string, cookies map[string]string) bool {
	essential, ok := platformEssentialCookies[platform]
	if !ok {
		return len(cookies) > 0
	}
	for _, name := range essential {
		if cookies[name] == "" {
			return false
		}
	}
	return true
}
