package slug

import (
	"regexp"
	"strings"
)

var nonAlphanum = regexp.MustCompile(`[^a-z0-9]+`)

// Generate creates a URL-friendly slug from a display name. Non-ASCII
// characters (e.g. Arabic campaign names) are dropped rather than
// transliterated; callers should pass the Latin name.
//
// Examples:
//   - "Summer Sale 2026"  → "summer-sale-2026"
//   - "Buy 2 Get 1 Free!" → "buy-2-get-1-free"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlphanum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}
