package event

import "strings"

// Matches reports whether name satisfies pattern.
//
// Four forms are recognized, and no others:
//   - "a:b"   matches only the literal name "a:b".
//   - "a:*"   matches any name with the literal prefix "a:".
//   - "*:b"   matches any name whose last colon-segment equals "b".
//   - "*"     matches every name, including the empty string.
func Matches(name, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := pattern[:len(pattern)-1] // keep trailing colon
		return strings.HasPrefix(name, prefix)
	}
	if strings.HasPrefix(pattern, "*:") {
		suffix := pattern[1:] // keep leading colon
		return strings.HasSuffix(name, suffix)
	}
	return name == pattern
}

// MatchesAny reports whether name satisfies at least one of patterns.
func MatchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if Matches(name, p) {
			return true
		}
	}
	return false
}

// FindMatchingPatterns returns the subset of patterns that match name,
// preserving the order patterns were given in.
func FindMatchingPatterns(name string, patterns []string) []string {
	matched := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if Matches(name, p) {
			matched = append(matched, p)
		}
	}
	return matched
}
