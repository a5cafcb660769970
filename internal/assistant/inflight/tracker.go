// Package inflight tracks keys that are currently being worked on. Acquiring a
// key is a single atomic insert-if-absent; there is no separate check step.
package inflight

import (
	"context"
	"time"

	"rag-assistant/internal/assistant/intent"
)

// Tracker is an atomic set of in-flight keys with start timestamps.
type Tracker interface {
	// TryAcquire inserts key if absent. When the key is already held it
	// returns false and the time the holder started.
	TryAcquire(ctx context.Context, key string) (acquired bool, startedAt time.Time, err error)
	// Release removes key if it is still held by the acquisition that
	// started at startedAt. A marker that expired and was taken over by a
	// newer holder is left alone. Releasing an absent key is not an error.
	Release(ctx context.Context, key string, startedAt time.Time) error
	// Get reports whether key is held and since when.
	Get(ctx context.Context, key string) (startedAt time.Time, held bool, err error)
}

// Key builds the in-flight key for a session and raw query.
func Key(sessionID, query string) string {
	return sessionID + ":" + intent.Normalize(query)
}
