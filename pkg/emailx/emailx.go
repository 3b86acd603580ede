// Package emailx extracts contact email addresses from free-text biographies.
//
// Extraction applies an ordered list of patterns from most to least
// specific, normalizes the first hit and re-validates its structure.
// The whole package is pure: safe to re-run over historical records.
package emailx

import (
	"regexp"
	"strings"
)

// addr is the common address body shared by all patterns.
const addr = `[a-zA-Z0-9._%+-]+\s*@\s*[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`

// Patterns are tried in order; the first match wins. Later patterns
// tolerate noisier surroundings (contact glyphs, "email:" labels).
var patterns = []*regexp.Regexp{
	// Plain RFC-like address.
	regexp.MustCompile(`\b` + addr + `\b`),
	// Address adjacent to contact-indicator glyphs or words.
	regexp.MustCompile(`(?i)(?:📧|📨|📩|💌|✉️?|contact|dm|reach|business|mail)\s*:?\s*(` + addr + `)`),
	// Address following a literal label.
	regexp.MustCompile(`(?i)(?:e-?mail|contact)\s*[:\-]\s*(` + addr + `)`),
}

// validPattern is the minimal structural check applied after normalization:
// local@domain.tld with a real TLD.
var validPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Extract returns the first structurally valid email address in text,
// lowercased, or false if none is found.
func Extract(text string) (string, bool) {
	if text == "" || !strings.Contains(text, "@") {
		return "", false
	}

	for _, pattern := range patterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		// Patterns with a capture group carry the address in m[1].
		candidate := m[0]
		if len(m) > 1 && m[1] != "" {
			candidate = m[1]
		}
		if email, ok := normalize(candidate); ok {
			return email, true
		}
	}
	return "", false
}

// normalize strips incidental whitespace and punctuation, lowercases,
// and re-validates the result.
func normalize(candidate string) (string, bool) {
	s := strings.ToLower(candidate)
	// Addresses split around "@" for obfuscation still match the loose
	// patterns; collapse the whitespace back out.
	s = strings.ReplaceAll(s, " ", "")
	s = strings.Trim(s, ".,;:()<>[]{}\"'")

	if !validPattern.MatchString(s) {
		return "", false
	}
	return s, true
}
