package prospect

import (
	"regexp"
	"strconv"
	"strings"
)

var countPattern = regexp.MustCompile(`^([\d.,]+)\s*([KMBkmb]?)$`)

// ParseCount parses display counts like "1,234", "5.3K", "1.2M" or "2B"
// into an integer. Unparseable input returns 0.
func ParseCount(s string) int {
	m := countPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}

	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}

	switch strings.ToUpper(m[2]) {
	case "K":
		num *= 1_000
	case "M":
		num *= 1_000_000
	case "B":
		num *= 1_000_000_000
	}
	return int(num)
}
