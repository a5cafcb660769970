package scrape

import (
	"strings"
	"unicode"
)

// minWordLen is the shortest single word that counts as an entity term.
const minWordLen = 4

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"by": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "and": {}, "or": {},
	"what": {}, "who": {}, "whom": {}, "when": {}, "where": {}, "why": {}, "how": {}, "which": {},
	"about": {}, "tell": {}, "me": {}, "please": {}, "with": {}, "from": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "there": {}, "their": {}, "does": {}, "did": {},
	"do": {}, "can": {}, "could": {}, "would": {}, "should": {}, "have": {}, "has": {},
	"give": {}, "more": {}, "some": {}, "any": {}, "info": {}, "information": {},
	"explain": {}, "describe": {}, "it": {}, "its": {}, "i": {}, "you": {}, "my": {},
	"your": {}, "know": {}, "like": {}, "into": {}, "than": {}, "then": {}, "them": {},
}

// ExtractTerms returns the entity terms of a query: runs of two or more
// consecutive non-stopwords, then single non-stopwords longer than three
// characters. Terms are lowercase and unique.
func ExtractTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})

	var terms []string
	seen := make(map[string]struct{})
	add := func(t string) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			terms = append(terms, t)
		}
	}

	var run []string
	flush := func() {
		if len(run) >= 2 {
			add(strings.Join(run, " "))
		}
		run = run[:0]
	}
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			flush()
			continue
		}
		run = append(run, w)
	}
	flush()

	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if len([]rune(w)) >= minWordLen {
			add(w)
		}
	}
	return terms
}

// EntityPresent reports whether any entity term of query occurs in text.
// A query with no terms passes.
func EntityPresent(query, text string) bool {
	terms := ExtractTerms(query)
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}
