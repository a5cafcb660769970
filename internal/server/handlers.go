package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"rag-assistant/internal/assistant/ask"
	apperrors "rag-assistant/internal/common/errors"
	"rag-assistant/internal/models"

	"github.com/go-chi/chi/v5"
)

type historyResponse struct {
	SessionID string                    `json:"session_id"`
	Messages  []models.ConversationTurn `json:"messages"`
}

type insertChunkResponse struct {
	ID int64 `json:"id"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	body, err := s.readValidated(w, r, s.askSchemaValidate)
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}

	var req ask.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.errors.Write(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	resp, err := s.deps.Assistant.Execute(r.Context(), &req)
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.errors.Write(w, r, apperrors.NewInvalidInputError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	sessionID := chi.URLParam(r, "sessionID")
	turns, err := s.deps.Assistant.History(r.Context(), sessionID, limit)
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Messages: turns})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Assistant.ClearSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.errors.Write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInsertChunk(w http.ResponseWriter, r *http.Request) {
	body, err := s.readValidated(w, r, s.chunkSchemaValidate)
	if err != nil {
		s.errors.Write(w, r, err)
		return
	}

	var chunk models.Chunk
	if err := json.Unmarshal(body, &chunk); err != nil {
		s.errors.Write(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	// ids are assigned by the store
	chunk.ID = 0

	if err := s.deps.Chunks.InsertChunk(r.Context(), &chunk); err != nil {
		s.errors.Write(w, r, apperrors.NewStorageUnavailableError("insert chunk", err))
		return
	}
	s.logger.Debug("chunk stored", map[string]interface{}{
		"id":          chunk.ID,
		"websiteId":   chunk.WebsiteID,
		"websiteLink": chunk.WebsiteLink,
	})
	writeJSON(w, http.StatusCreated, insertChunkResponse{ID: chunk.ID})
}

func (s *Server) askSchemaValidate(body []byte) error {
	if res := s.askSchema.Validate(body); !res.Valid {
		return apperrors.NewInvalidInputError(res.Error())
	}
	return nil
}

func (s *Server) chunkSchemaValidate(body []byte) error {
	if res := s.chunkSchema.Validate(body); !res.Valid {
		return apperrors.NewInvalidInputError(res.Error())
	}
	return nil
}

// readValidated reads a bounded body and checks it against a schema.
func (s *Server) readValidated(w http.ResponseWriter, r *http.Request, validate func([]byte) error) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewInvalidInputError("request body could not be read: " + err.Error())
	}
	if err := validate(body); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady pings every configured backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.deps.Checkers))
	status := http.StatusOK
	for _, c := range s.deps.Checkers {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := c.Ping(ctx)
		cancel()
		if err != nil {
			checks[c.Name()] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name()] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
