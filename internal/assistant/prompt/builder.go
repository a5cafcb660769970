// Package prompt assembles the instruction payload sent to the completion
// service, one template per intent.
package prompt

import (
	"fmt"
	"strings"

	"rag-assistant/internal/assistant/intent"
	"rag-assistant/internal/assistant/sessioncache"
	"rag-assistant/internal/clients/completion"
	"rag-assistant/internal/models"
)

// FallbackAnswer is the exact reply for questions the context cannot answer.
// Other components match on it, so it must not be reworded.
const FallbackAnswer = "I don't have enough information about that in my knowledge base."

// ForbiddenPhrases may not appear in any answer.
var ForbiddenPhrases = []string{
	"As an AI",
	"I think",
	"I believe",
	"It seems",
	"probably",
	"might be",
	"Based on my knowledge",
	"I'm not sure",
	"In general",
}

type Config struct {
	ChunkCharBudget int
	HistoryTurns    int
	PreviousAnswer  int
}

func DefaultConfig() *Config {
	return &Config{
		ChunkCharBudget: 1000,
		HistoryTurns:    6,
		PreviousAnswer:  500,
	}
}

// Input is everything a prompt can draw on.
type Input struct {
	Intent  intent.Intent
	Query   string
	Chunks  []string
	Links   []string
	History []models.ConversationTurn
	Cache   *sessioncache.Entry
}

type Builder struct {
	config *Config
}

func NewBuilder(config *Config) *Builder {
	if config == nil {
		config = DefaultConfig()
	}
	return &Builder{config: config}
}

// Build returns the system prompt for in.
func (b *Builder) Build(in Input) string {
	var parts []string

	switch in.Intent {
	case intent.LinkRequest:
		parts = append(parts,
			"You are a research assistant. The user is asking for links about the current topic.",
			"List only links from the Candidate Links section, one per line, each with a short note on what it covers.",
			"Never invent, shorten or alter a link.")
	case intent.Clarification:
		parts = append(parts,
			"You are a knowledge assistant. The user wants more detail on your previous answer.",
			"Expand on the previous answer using only the context below. Add detail, do not repeat it verbatim.")
	case intent.FollowUp:
		parts = append(parts,
			"You are a knowledge assistant. The user's message continues the current conversation.",
			"Resolve pronouns and short phrases against the recent conversation, then answer using only the context below.")
	case intent.EntitySwitch:
		parts = append(parts,
			"You are a knowledge assistant. The user has switched to a new subject.",
			"Ignore earlier subjects and answer about the new one using only the context below.")
	case intent.MCQ:
		parts = append(parts,
			"You are a knowledge assistant answering a multiple-choice or true/false question.",
			"State the correct option first, then one or two sentences of justification from the context below.")
	default:
		parts = append(parts,
			"You are a knowledge assistant. Answer the user's question using only the context below.")
	}

	parts = append(parts, "", "Context:")
	if len(in.Chunks) == 0 {
		parts = append(parts, "(no context available)")
	}
	for i, text := range in.Chunks {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, intent.Truncate(strings.TrimSpace(text), b.config.ChunkCharBudget)))
	}

	if prev := b.previousAnswer(in); prev != "" {
		parts = append(parts, "", "Previous Answer:", prev)
	}

	if links := CandidateLinks(in); len(links) > 0 {
		parts = append(parts, "", "Candidate Links:")
		for _, l := range links {
			parts = append(parts, "- "+l)
		}
	}

	parts = append(parts, "", "Rules:",
		"- Answer only from the supplied context. Do not use outside knowledge.",
		fmt.Sprintf("- If the context does not contain the answer, reply with exactly: %s", FallbackAnswer),
		"- Never use these phrases: "+strings.Join(quoted(ForbiddenPhrases), ", ")+".",
		"- Be direct and concise.")

	return strings.Join(parts, "\n")
}

// Messages returns the full chat payload: the system prompt, the recent
// conversation, then the query.
func (b *Builder) Messages(in Input) []completion.Message {
	msgs := []completion.Message{{Role: completion.RoleSystem, Content: b.Build(in)}}

	recent := in.History
	if n := b.config.HistoryTurns; n >= 0 && len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	for _, t := range recent {
		role := completion.RoleUser
		if t.Role == models.RoleAssistant {
			role = completion.RoleAssistant
		}
		msgs = append(msgs, completion.Message{Role: role, Content: t.Message})
	}

	return append(msgs, completion.Message{Role: completion.RoleUser, Content: in.Query})
}

func (b *Builder) previousAnswer(in Input) string {
	if in.Cache == nil || in.Cache.LastAnswer == "" {
		return ""
	}
	if in.Intent != intent.FollowUp && in.Intent != intent.Clarification {
		return ""
	}
	return intent.Truncate(in.Cache.LastAnswer, b.config.PreviousAnswer)
}

func quoted(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = `"` + s + `"`
	}
	return out
}

// ContainsForbidden reports the first forbidden phrase found in answer.
func ContainsForbidden(answer string) (string, bool) {
	lower := strings.ToLower(answer)
	for _, p := range ForbiddenPhrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}
