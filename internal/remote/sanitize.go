package remote

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Apertium prefixes words it could not handle: * unknown, # generation
// failure, @ transfer failure.
var markerRe = regexp.MustCompile(`(^|[\s\p{P}])([*#@]+)([\p{L}\p{N}]+)`)

// Sanitize strips service markup from a correction and normalizes it to NFC.
func Sanitize(s string) string {
	return sanitizeAgainst(s, "")
}

// sanitizeAgainst strips markers like Sanitize, except that a marker run
// (or its tail) is kept when the original text already had it in front of
// the same word, as in handles, hashtags and footnote stars.
func sanitizeAgainst(s, original string) string {
	strip := func(m string) string {
		sub := markerRe.FindStringSubmatch(m)
		lead, markers, word := sub[1], sub[2], sub[3]
		for i := 0; i < len(markers); i++ {
			if original != "" && strings.Contains(original, markers[i:]+word) {
				return lead + markers[i:] + word
			}
		}
		return lead + word
	}
	s = markerRe.ReplaceAllStringFunc(s, strip)
	// a second pass catches markers adjacent to a previous match
	s = markerRe.ReplaceAllStringFunc(s, strip)
	return normalize(s)
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
