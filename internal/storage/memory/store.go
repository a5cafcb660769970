// Package memory is an in-process chunk and turn store for development and
// tests. Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"rag-assistant/internal/models"
	"rag-assistant/internal/storage"
)

type Store struct {
	mu     sync.RWMutex
	chunks []models.Chunk
	nextID int64
	turns  map[string][]models.ConversationTurn
}

func NewStore() *Store {
	return &Store{turns: make(map[string][]models.ConversationTurn)}
}

func (s *Store) Name() string { return "memory" }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) InsertChunk(_ context.Context, chunk *models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	chunk.ID = s.nextID
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	c := *chunk
	c.Embedding = append([]float64(nil), chunk.Embedding...)
	s.chunks = append(s.chunks, c)
	return nil
}

// AllChunks returns chunks in insertion order.
func (s *Store) AllChunks(context.Context) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out, nil
}

func (s *Store) ListTurns(_ context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ConversationTurn, len(s.turns[sessionID]))
	copy(out, s.turns[sessionID])
	storage.SortTurns(out)
	return storage.TakeLast(out, limit), nil
}

func (s *Store) AppendTurns(_ context.Context, turns ...models.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		s.turns[t.SessionID] = append(s.turns[t.SessionID], t)
	}
	return nil
}

func (s *Store) DeleteTurns(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.turns, sessionID)
	s.mu.Unlock()
	return nil
}
