// Package storage holds helpers shared by the chunk and turn store
// implementations in its subpackages.
package storage

import (
	"sort"

	"rag-assistant/internal/models"
)

// SortTurns orders turns by CreatedAt, keeping insertion order for ties.
func SortTurns(turns []models.ConversationTurn) {
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})
}

// TakeLast keeps the most recent limit turns of an ordered slice. limit <= 0
// keeps everything.
func TakeLast(turns []models.ConversationTurn, limit int) []models.ConversationTurn {
	if limit > 0 && len(turns) > limit {
		return turns[len(turns)-limit:]
	}
	return turns
}
