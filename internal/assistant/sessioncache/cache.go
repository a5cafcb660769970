// Package sessioncache keeps the last answer, topic and accumulated links of
// each session.
package sessioncache

import (
	"context"
	"time"

	"rag-assistant/internal/assistant/intent"
)

// Entry is one session's cached state.
type Entry struct {
	SessionID  string    `json:"session_id"`
	LastTopic  string    `json:"last_topic"`
	Links      []string  `json:"links"`
	LastAnswer string    `json:"last_answer"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Update is a write to a session entry. Replace discards the previous links
// instead of merging with them.
type Update struct {
	Answer  string
	Topic   string
	Links   []string
	Replace bool
}

// UpdateFor builds the write an answer under in should make.
func UpdateFor(in intent.Intent, answer, topic string, links []string) Update {
	return Update{
		Answer:  answer,
		Topic:   topic,
		Links:   links,
		Replace: in.ReplacesCache(),
	}
}

// Cache is the session answer cache contract. Get returns nil for unknown or
// expired sessions.
type Cache interface {
	Get(ctx context.Context, sessionID string) (*Entry, error)
	Put(ctx context.Context, sessionID string, u Update) error
	Clear(ctx context.Context, sessionID string) error
}

// apply folds u into prev. prev may be nil.
func apply(prev *Entry, sessionID string, u Update, now time.Time) *Entry {
	next := &Entry{
		SessionID:  sessionID,
		LastTopic:  u.Topic,
		LastAnswer: u.Answer,
		UpdatedAt:  now,
	}
	if prev != nil && !u.Replace {
		next.Links = union(prev.Links, u.Links)
		if next.LastTopic == "" {
			next.LastTopic = prev.LastTopic
		}
	} else {
		next.Links = union(nil, u.Links)
	}
	return next
}

// union returns a ∪ b keeping first-seen order.
func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
