package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxUserAgentLen bounds the stored User-Agent header.
	MaxUserAgentLen = 512
	// MaxNameLen bounds the stored display name.
	MaxNameLen = 200
)

// CleanText trims s, drops control characters and truncates it to at most
// max bytes without splitting a rune. A max of zero disables truncation.
func CleanText(s string, max int) string {
	s = strings.TrimSpace(removeControlChars(s))
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}

// removeControlChars removes every control character, newlines included.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
