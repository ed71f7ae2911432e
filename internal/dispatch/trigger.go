package dispatch

import "strings"

// MatchTrigger reports whether phrase occurs in text, ignoring case.
func MatchTrigger(phrase, text string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(phrase))
}
