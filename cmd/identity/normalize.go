package identity

import (
	"strings"
	"unicode"
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps only digits. Country codes are stored separately.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeCountryCode returns a "+<digits>" dialing prefix, or "" when s has no digits.
func NormalizeCountryCode(s string) string {
	d := NormalizePhone(s)
	if d == "" {
		return ""
	}
	return "+" + d
}

// NormalizeProvider lower-cases an identity provider name ("Google" -> "google").
func NormalizeProvider(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
