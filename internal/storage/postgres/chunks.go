// Package postgres stores chunks and conversation turns in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/models"

	"github.com/lib/pq"
)

const (
	insertChunkSQL = `INSERT INTO website_chunks (website_id, website_link, plain_text, embedding)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	allChunksSQL = `SELECT id, website_id, website_link, plain_text, embedding, created_at
		FROM website_chunks ORDER BY id`
)

type ChunkStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewChunkStore(db *sql.DB, log logger.Logger) *ChunkStore {
	return &ChunkStore{
		db:     db,
		logger: log.With(map[string]interface{}{"component": "chunk-store", "backend": "postgres"}),
	}
}

func (s *ChunkStore) InsertChunk(ctx context.Context, chunk *models.Chunk) error {
	err := s.db.QueryRowContext(ctx, insertChunkSQL,
		chunk.WebsiteID, chunk.WebsiteLink, chunk.PlainText, pq.Float64Array(chunk.Embedding),
	).Scan(&chunk.ID, &chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert chunk: %w", err)
	}
	return nil
}

// AllChunks reads every chunk in id order. A row whose embedding cannot be
// parsed is returned with a nil embedding so ranking skips it.
func (s *ChunkStore) AllChunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, allChunksSQL)
	if err != nil {
		return nil, fmt.Errorf("postgres: query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		var raw []byte
		if err := rows.Scan(&c.ID, &c.WebsiteID, &c.WebsiteLink, &c.PlainText, &raw, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}

		var vec pq.Float64Array
		if err := vec.Scan(raw); err != nil {
			s.logger.Warn("skipping malformed embedding", map[string]interface{}{
				"chunkId": c.ID,
				"error":   err.Error(),
			})
		} else {
			c.Embedding = []float64(vec)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate chunks: %w", err)
	}
	return chunks, nil
}
