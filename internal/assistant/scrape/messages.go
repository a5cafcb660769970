package scrape

import (
	"fmt"
	"strings"

	"rag-assistant/internal/assistant/prompt"
)

// Outcome of a finished scrape.
type Outcome string

const (
	OutcomeFound  Outcome = "found"
	OutcomeNone   Outcome = "none"
	OutcomeFailed Outcome = "error"
)

// noNewResults in a scraper message marks a negative outcome even when a
// count is reported.
const noNewResults = "no new"

var noInfoPhrases = []string{
	strings.ToLower(prompt.FallbackAnswer),
	"don't have enough information",
	"do not have enough information",
	"no information",
	"not mentioned in the",
	"isn't mentioned",
	"not provided in the context",
	"couldn't find",
	"could not find",
	"unable to find",
}

// HasNoInfo reports whether an answer admits the context did not cover the
// question.
func HasNoInfo(answer string) bool {
	a := strings.ToLower(answer)
	for _, p := range noInfoPhrases {
		if strings.Contains(a, p) {
			return true
		}
	}
	return false
}

// SearchingMessage is the reply when a scrape has just been started.
func SearchingMessage(query string) string {
	return fmt.Sprintf("I couldn't find enough information about \"%s\" in my knowledge base, so I'm searching the web for it now. Please ask again in a moment.", query)
}

// StillSearchingMessage is the reply while a scrape for the same key runs.
func StillSearchingMessage(query string, elapsedSeconds int) string {
	return fmt.Sprintf("Still searching the web for \"%s\" (%d seconds elapsed). Please ask again shortly.", query, elapsedSeconds)
}

// OutcomeMessage is the assistant turn appended when a scrape finishes.
func OutcomeMessage(query string, o Outcome) string {
	switch o {
	case OutcomeFound:
		return fmt.Sprintf("I found new information about \"%s\". Ask your question again to get an updated answer.", query)
	case OutcomeNone:
		return fmt.Sprintf("I couldn't find relevant information about \"%s\" on the web.", query)
	default:
		return fmt.Sprintf("Something went wrong while searching the web for \"%s\". Please try again later.", query)
	}
}
