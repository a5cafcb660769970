package intent

import (
	"strings"
	"unicode/utf8"
)

var questionWords = map[string]struct{}{
	"what": {}, "who": {}, "whom": {}, "whose": {}, "where": {}, "when": {}, "why": {},
	"how": {}, "which": {}, "is": {}, "are": {}, "was": {}, "were": {}, "do": {},
	"does": {}, "did": {}, "can": {}, "could": {}, "should": {}, "would": {}, "will": {},
	"tell": {}, "explain": {}, "define": {}, "describe": {}, "list": {}, "give": {}, "show": {},
}

// Normalize lowercases, trims, collapses whitespace and strips trailing
// ?, ! and . so that trivially different spellings of a query share a key.
func Normalize(query string) string {
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	return strings.TrimRight(q, "?!. ")
}

// WordCount counts whitespace-separated words.
func WordCount(query string) int {
	return len(strings.Fields(query))
}

// IsQuestion reports whether the query reads as a question: it ends with a
// question mark or starts with a question word.
func IsQuestion(query string) bool {
	q := strings.TrimSpace(query)
	if strings.HasSuffix(q, "?") {
		return true
	}
	fields := strings.Fields(strings.ToLower(q))
	if len(fields) == 0 {
		return false
	}
	_, ok := questionWords[strings.Trim(fields[0], ",.!?;:")]
	return ok
}

// IsShortNonQuestion is the "≤3 words and not a question" test shared by
// several rules and the embedding query builder.
func IsShortNonQuestion(query string) bool {
	n := WordCount(query)
	return n > 0 && n <= 3 && !IsQuestion(query)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
