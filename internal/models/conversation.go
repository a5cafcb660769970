package models

import (
	"context"
	"time"
)

// Role of a conversation turn author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in a session. Turns are append-only and
// ordered by CreatedAt, then ID.
type ConversationTurn struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Role      Role      `json:"role" db:"role"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsUser reports whether the turn was written by the user.
func (t ConversationTurn) IsUser() bool {
	return t.Role == RoleUser
}

// TurnRepository is the conversation store contract.
type TurnRepository interface {
	// ListTurns returns a session's turns oldest first. limit > 0 keeps only
	// the most recent limit turns.
	ListTurns(ctx context.Context, sessionID string, limit int) ([]ConversationTurn, error)
	AppendTurns(ctx context.Context, turns ...ConversationTurn) error
	DeleteTurns(ctx context.Context, sessionID string) error
}

// UserMessages returns the message text of user turns, oldest first.
func UserMessages(history []ConversationTurn) []string {
	out := make([]string, 0, len(history))
	for _, t := range history {
		if t.IsUser() {
			out = append(out, t.Message)
		}
	}
	return out
}

// LastUserMessages returns up to n most recent user messages, oldest first.
func LastUserMessages(history []ConversationTurn, n int) []string {
	msgs := UserMessages(history)
	if n >= 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}
