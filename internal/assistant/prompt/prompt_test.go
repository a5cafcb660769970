package prompt

import (
	"strings"
	"testing"
	"time"

	"rag-assistant/internal/assistant/intent"
	"rag-assistant/internal/assistant/sessioncache"
	"rag-assistant/internal/clients/completion"
	"rag-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turns(msgs ...string) []models.ConversationTurn {
	out := make([]models.ConversationTurn, len(msgs))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, m := range msgs {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out[i] = models.ConversationTurn{SessionID: "s", Role: role, Message: m, CreatedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestBuild_EveryTemplateCarriesRules(t *testing.T) {
	b := NewBuilder(nil)
	for _, in := range []intent.Intent{
		intent.LinkRequest, intent.MCQ, intent.ScrapeIntent, intent.Clarification,
		intent.FollowUp, intent.EntitySwitch, intent.Independent,
	} {
		t.Run(string(in), func(t *testing.T) {
			p := b.Build(Input{Intent: in, Query: "q", Chunks: []string{"ctx"}})
			assert.Contains(t, p, "reply with exactly: "+FallbackAnswer)
			for _, phrase := range ForbiddenPhrases {
				assert.Contains(t, p, `"`+phrase+`"`)
			}
			assert.Contains(t, p, "[1] ctx")
		})
	}
}

func TestBuild_TruncatesChunks(t *testing.T) {
	b := NewBuilder(&Config{ChunkCharBudget: 10, HistoryTurns: 6})
	p := b.Build(Input{Intent: intent.Independent, Chunks: []string{strings.Repeat("a", 50)}})
	assert.Contains(t, p, "[1] "+strings.Repeat("a", 10)+"\n")
	assert.NotContains(t, p, strings.Repeat("a", 11))
}

func TestBuild_NoContext(t *testing.T) {
	p := NewBuilder(nil).Build(Input{Intent: intent.Independent})
	assert.Contains(t, p, "(no context available)")
	assert.NotContains(t, p, "Candidate Links:")
}

func TestBuild_PreviousAnswerOnlyForContinuations(t *testing.T) {
	b := NewBuilder(nil)
	cache := &sessioncache.Entry{LastAnswer: "Paris is the capital."}

	assert.Contains(t, b.Build(Input{Intent: intent.FollowUp, Cache: cache}), "Previous Answer:\nParis is the capital.")
	assert.Contains(t, b.Build(Input{Intent: intent.Clarification, Cache: cache}), "Previous Answer:")
	assert.NotContains(t, b.Build(Input{Intent: intent.Independent, Cache: cache}), "Previous Answer:")
}

func TestCandidateLinks_CacheGate(t *testing.T) {
	cache := &sessioncache.Entry{
		LastTopic: "Rust ownership rules",
		Links:     []string{"https://doc.rust-lang.org/book/ch04-01-what-is-ownership.html"},
	}

	tests := []struct {
		name    string
		intent  intent.Intent
		history []models.ConversationTurn
		query   string
		want    int
	}{
		{"topic in recent user turns", intent.LinkRequest, turns("rust ownership", "Ownership is..."), "give me the link", 2},
		{"topic in the query", intent.LinkRequest, nil, "links for rust", 2},
		{"stale topic dropped", intent.LinkRequest, turns("rust ownership", "a", "golang", "b", "python", "c", "java", "d"), "give me the link", 1},
		{"other intents ignore cache", intent.FollowUp, turns("rust ownership", "a"), "and borrowing", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := CandidateLinks(Input{
				Intent:  tt.intent,
				Query:   tt.query,
				History: tt.history,
				Cache:   cache,
				Links:   []string{"https://example.com/rust"},
			})
			assert.Len(t, links, tt.want)
		})
	}
}

func TestCacheRelevant_Empty(t *testing.T) {
	assert.False(t, CacheRelevant(nil, nil, "rust"))
	assert.False(t, CacheRelevant(&sessioncache.Entry{LastTopic: "rust"}, nil, "rust"))
	assert.False(t, CacheRelevant(&sessioncache.Entry{LastTopic: "what is", Links: []string{"x"}}, nil, "what is"))
}

func TestNormalizeLink(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"HTTPS://Example.COM/Path/", "https://example.com/Path"},
		{"https://example.com/a#section", "https://example.com/a"},
		{"https://example.com/a?utm_source=x&id=3&UTM_medium=y", "https://example.com/a?id=3"},
		{"https://example.com/?utm_source=x", "https://example.com"},
		{"  not a url  ", "not a url"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLink(tt.in))
		})
	}
}

func TestDedupeLinks(t *testing.T) {
	got := DedupeLinks(
		[]string{"https://a.dev/x/", "", "https://b.dev"},
		[]string{"https://A.dev/x#top", "https://c.dev"},
	)
	assert.Equal(t, []string{"https://a.dev/x", "https://b.dev", "https://c.dev"}, got)
}

func TestMessages(t *testing.T) {
	b := NewBuilder(&Config{ChunkCharBudget: 100, HistoryTurns: 2})
	msgs := b.Messages(Input{
		Intent:  intent.FollowUp,
		Query:   "finland",
		History: turns("capital of France", "Paris.", "and Spain", "Madrid."),
	})

	require.Len(t, msgs, 4)
	assert.Equal(t, completion.RoleSystem, msgs[0].Role)
	assert.Equal(t, completion.Message{Role: completion.RoleUser, Content: "and Spain"}, msgs[1])
	assert.Equal(t, completion.Message{Role: completion.RoleAssistant, Content: "Madrid."}, msgs[2])
	assert.Equal(t, completion.Message{Role: completion.RoleUser, Content: "finland"}, msgs[3])
}

func TestContainsForbidden(t *testing.T) {
	p, ok := ContainsForbidden("Paris is probably the capital.")
	assert.True(t, ok)
	assert.Equal(t, "probably", p)

	_, ok = ContainsForbidden("Paris is the capital.")
	assert.False(t, ok)
}
