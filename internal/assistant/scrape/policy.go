package scrape

import "rag-assistant/internal/assistant/intent"

// NeedsScrapeAfterAnswer reports whether a completed answer should still
// start a scrape: the model admitted it had nothing, the queried entity is
// missing from the retrieved text, and the intent may scrape at all.
func NeedsScrapeAfterAnswer(in intent.Intent, query, answer, retrievedText string) bool {
	if !in.AllowsScrape() || !HasNoInfo(answer) {
		return false
	}
	return !EntityPresent(query, retrievedText)
}
