// Package validate applies campaign business rules to resolved profile
// snapshots.
package validate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

// RejectionError carries the first rule a snapshot failed. The message is
// recorded on the candidate's attempt so operators can see why a resolved
// profile produced no prospect.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func reject(format string, args ...any) error {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// Eligible checks a snapshot against the run's rules. It returns nil when
// every rule passes, or a RejectionError naming the first rule that failed.
func Eligible(s *prospect.Snapshot, cfg *prospect.RunConfig) error {
	if s.Private {
		return reject("account is private")
	}
	if s.Followers < cfg.MinFollowers {
		return reject("followers %d below minimum %d", s.Followers, cfg.MinFollowers)
	}
	if s.Followers > cfg.MaxFollowers {
		return reject("followers %d above maximum %d", s.Followers, cfg.MaxFollowers)
	}
	if !wellFormedName(s.Name) {
		return reject("display name missing or malformed")
	}

	text := strings.ToLower(s.Name + " " + s.Bio)
	if len(cfg.Keywords) > 0 && !containsAny(text, cfg.Keywords) {
		return reject("no required keyword in name or bio")
	}
	for _, kw := range cfg.ExcludeKeywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return reject("excluded keyword %q in name or bio", kw)
		}
	}
	return nil
}

// wellFormedName requires at least one letter or digit; a name made only
// of punctuation or whitespace is a placeholder, not a person.
func wellFormedName(name string) bool {
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
