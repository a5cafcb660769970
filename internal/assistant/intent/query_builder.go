package intent

import (
	"strings"

	"rag-assistant/internal/models"
)

const (
	// topicLookback is how many user turns a link request searches for its topic.
	topicLookback = 3
	// contextTurns is how many history turns enrich an anchored query.
	contextTurns = 6
	// assistantSnippet caps assistant text folded into an embedding query.
	assistantSnippet = 200
)

// BuildEmbeddingQuery returns the literal text to embed for query.
func BuildEmbeddingQuery(query string, intent Intent, history []models.ConversationTurn) string {
	if intent == LinkRequest {
		if topic := LinkTopic(history); topic != "" {
			return topic
		}
		return query
	}

	if intent == FollowUp || intent == Clarification || IsShortNonQuestion(query) {
		if NewInput(query, history).IsRepeat() {
			return query
		}
		return withContext(query, history)
	}

	return query
}

// LinkTopic returns the most recent user message among the last few that is
// not itself a request for links, or "" when there is none.
func LinkTopic(history []models.ConversationTurn) string {
	msgs := models.LastUserMessages(history, topicLookback)
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := strings.TrimSpace(msgs[i])
		if msg != "" && !IsLinkRequestText(msg) {
			return msg
		}
	}
	return ""
}

func withContext(query string, history []models.ConversationTurn) string {
	recent := history
	if len(recent) > contextTurns {
		recent = recent[len(recent)-contextTurns:]
	}

	parts := make([]string, 0, len(recent)+1)
	for _, turn := range recent {
		text := strings.TrimSpace(turn.Message)
		if turn.Role == models.RoleAssistant {
			text = Truncate(text, assistantSnippet)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	parts = append(parts, query)
	return strings.Join(parts, " ")
}
