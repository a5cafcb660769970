package models

import (
	"context"
	"time"
)

// Chunk is a stored unit of scraped text plus its embedding vector.
// Chunks are immutable once written.
type Chunk struct {
	ID          int64     `json:"id" db:"id"`
	WebsiteID   int64     `json:"website_id" db:"website_id"`
	WebsiteLink string    `json:"website_link" db:"website_link"`
	PlainText   string    `json:"plain_text" db:"plain_text"`
	Embedding   []float64 `json:"embedding" db:"embedding"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ScoredChunk pairs a chunk with its similarity to the current query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// ChunkRepository is the chunk store contract: insert and bulk read.
type ChunkRepository interface {
	InsertChunk(ctx context.Context, chunk *Chunk) error
	AllChunks(ctx context.Context) ([]Chunk, error)
}
