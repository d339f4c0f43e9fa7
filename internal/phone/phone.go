// Package phone canonicalizes phone strings for use as correlation and
// lookup keys. Normalization is a pure function: invalid input degrades
// to an empty or degenerate string, never an error.
package phone

import (
	"regexp"
	"strings"
)

const whatsappPrefix = "whatsapp:"

var findPattern = regexp.MustCompile(`\+?\d[\d\s\-().]{7,}\d`)

// Normalize strips internal whitespace, hyphens, parentheses, and periods,
// rewrites a leading "00" international prefix to "+", and rewrites the
// domestic trunk form "8XXXXXXXXXX" (eleven digits) to "+7XXXXXXXXXX".
// It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}
	if len(cleaned) == 11 && cleaned[0] == '8' && isDigits(cleaned) {
		cleaned = "+7" + cleaned[1:]
	}
	return cleaned
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeWhatsApp strips the WhatsApp transport scheme before the
// generic cleanup. Sender ids arrive as "whatsapp:+79991234567".
func NormalizeWhatsApp(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) >= len(whatsappPrefix) && strings.EqualFold(trimmed[:len(whatsappPrefix)], whatsappPrefix) {
		trimmed = trimmed[len(whatsappPrefix):]
	}
	return Normalize(trimmed)
}

// Find scans free text for the first phone-like substring: an optional
// leading "+", a digit, then at least eight further digits or separators.
// The match is returned normalized, or "" when nothing phone-like occurs.
func Find(text string) string {
	match := findPattern.FindString(text)
	if match == "" {
		return ""
	}
	return Normalize(match)
}
