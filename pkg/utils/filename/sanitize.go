// Package filename provides utilities for sanitizing strings into safe path segments.
package filename

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLen keeps segments under the common 255 byte filesystem limit
// with room for an extension and a temp suffix.
const DefaultMaxLen = 200

// invalidCharsRe matches characters not safe for filenames across all major OSes.
var invalidCharsRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

// spaceRe collapses runs of whitespace.
var spaceRe = regexp.MustCompile(`\s+`)

// Sanitize cleans a single path segment. Forbidden characters are stripped,
// whitespace is collapsed, and trailing dots and spaces are trimmed. The
// result is NFC normalized and truncated to maxLen bytes (0 = DefaultMaxLen).
func Sanitize(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}

	s := norm.NFC.String(name)
	s = invalidCharsRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	// Truncate to maxLen, but don't cut in the middle of a UTF-8 sequence.
	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}

	// Windows refuses trailing dots and spaces.
	s = strings.TrimRight(s, ". ")

	return s
}

// SanitizePath sanitizes every "/" separated segment of p independently and
// joins the non-empty results back together.
func SanitizePath(p string) string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := Sanitize(part, 0); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "/")
}
