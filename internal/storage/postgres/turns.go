package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"rag-assistant/internal/models"
)

const (
	listTurnsSQL = `SELECT id, session_id, role, message, created_at
		FROM conversation_turns WHERE session_id = $1
		ORDER BY created_at, seq`
	listRecentTurnsSQL = `SELECT id, session_id, role, message, created_at FROM (
		SELECT id, session_id, role, message, created_at, seq
		FROM conversation_turns WHERE session_id = $1
		ORDER BY created_at DESC, seq DESC LIMIT $2
	) recent ORDER BY created_at, seq`
	insertTurnSQL = `INSERT INTO conversation_turns (id, session_id, role, message, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	deleteTurnsSQL = `DELETE FROM conversation_turns WHERE session_id = $1`
)

type TurnStore struct {
	db *sql.DB
}

func NewTurnStore(db *sql.DB) *TurnStore {
	return &TurnStore{db: db}
}

func (s *TurnStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, listRecentTurnsSQL, sessionID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, listTurnsSQL, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: query turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		var role string
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Message, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan turn: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate turns: %w", err)
	}
	return turns, nil
}

// AppendTurns writes all turns in one transaction so a user turn is never
// stored without its reply.
func (s *TurnStore) AppendTurns(ctx context.Context, turns ...models.ConversationTurn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	for _, t := range turns {
		if _, err := tx.ExecContext(ctx, insertTurnSQL, t.ID, t.SessionID, string(t.Role), t.Message, t.CreatedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres: insert turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (s *TurnStore) DeleteTurns(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, deleteTurnsSQL, sessionID); err != nil {
		return fmt.Errorf("postgres: delete turns: %w", err)
	}
	return nil
}
