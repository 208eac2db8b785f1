// Package command recognizes the customer-facing control words inside
// inbound message text. All matching is case-insensitive and operates on
// the trimmed text; keywords themselves are configurable.
package command

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsKeyword reports whether the trimmed text is exactly the keyword,
// ignoring case. "schliessen" matches SCHLIESSEN; "bitte schliessen"
// does not.
func IsKeyword(text, keyword string) bool {
	return strings.EqualFold(strings.TrimSpace(text), keyword)
}

// ParseSwitch extracts the ticket number from a switch command like
// "Ticket-Wechsel #12345". The hash and the spacing around it are
// optional. Returns "" when the text is not a well-formed switch command.
func ParseSwitch(text, switchKeyword string) string {
	re, err := switchPattern(switchKeyword)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return ""
	}
	return m[1]
}

func switchPattern(keyword string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)^` + regexp.QuoteMeta(keyword) + `\s*#?\s*([A-Za-z0-9-]+)$`)
}

// StartsWithControlWord reports whether the text begins with the keyword
// followed by a non-alphanumeric boundary (or nothing). It catches
// malformed commands like "Ticket-Wechsel 12 345" without swallowing
// ordinary sentences such as "NEUES Auto kaufen".
func StartsWithControlWord(text, keyword string) bool {
	t := strings.TrimSpace(text)
	if len(t) < len(keyword) {
		return false
	}
	if !strings.EqualFold(t[:len(keyword)], keyword) {
		return false
	}
	rest := t[len(keyword):]
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// IsSignalWord reports whether the text is conversational filler that
// should not reopen a closed conversation: one of the configured phrases
// ("ok", "danke", ...), one of the exact-match keywords, or any message
// of at most two runes once trimmed.
func IsSignalWord(text string, signalWords []string, keywords ...string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	if utf8.RuneCountInString(t) <= 2 {
		return true
	}
	lower := strings.ToLower(t)
	lower = strings.TrimRight(lower, ".!? ")
	for _, w := range signalWords {
		if lower == strings.ToLower(w) {
			return true
		}
	}
	for _, kw := range keywords {
		if lower == strings.ToLower(kw) {
			return true
		}
	}
	return false
}
