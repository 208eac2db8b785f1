// Package phone canonicalizes customer phone numbers. The messaging channel
// and the ticketing backend disagree on formatting ("+49 170 ...", "0170...",
// "49170..."), so every lookup key goes through Canonical first.
package phone

import (
	"regexp"
	"strings"
)

const (
	MinLength = 10
	MaxLength = 15
)

var mobilePrefix = regexp.MustCompile(`^1[5-7]\d`)

// Canonical strips all non-digits and, for German-looking national numbers,
// prepends the 49 country code so that "0170 1234567" and "+49 170 1234567"
// map to the same key.
func Canonical(s string) string {
	cleaned := digits(s)
	if len(cleaned) < MinLength {
		return cleaned
	}

	if len(cleaned) >= 10 && len(cleaned) <= 12 {
		switch {
		case strings.HasPrefix(cleaned, "0"):
			cleaned = "49" + cleaned[1:]
		case mobilePrefix.MatchString(cleaned):
			cleaned = "49" + cleaned
		}
	}

	return cleaned
}

// Format renders a canonical number for display, e.g. "+49 170 1234567".
func Format(s string) string {
	cleaned := Canonical(s)
	if strings.HasPrefix(cleaned, "49") && len(cleaned) >= 12 {
		return "+49 " + cleaned[2:5] + " " + cleaned[5:]
	}
	return "+" + cleaned
}

// Valid reports whether s contains a plausible international number.
func Valid(s string) bool {
	n := len(digits(s))
	return n >= MinLength && n <= MaxLength
}

// Variants returns the formats under which the same number may already be
// stored in the ticketing backend. Used when resolving an existing user.
func Variants(s string) []string {
	cleaned := Canonical(s)
	v := []string{"+" + cleaned, cleaned}
	if len(cleaned) > 2 {
		v = append(v, "+"+cleaned[:2]+" "+cleaned[2:])
	}
	return v
}

func digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
