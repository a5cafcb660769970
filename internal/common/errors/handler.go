package errors

import (
	"encoding/json"
	"net/http"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Handler turns arbitrary errors into the JSON error envelope.
type Handler struct {
	logger Logger
}

func NewHandler(logger Logger) *Handler {
	return &Handler{logger: logger}
}

type envelope struct {
	Error *StandardError `json:"error"`
}

// Normalize ensures we always have a StandardError.
func (h *Handler) Normalize(err error) *StandardError {
	if se, ok := AsStandardError(err); ok {
		return se
	}
	return NewInternalError(err)
}

// Write logs err and writes it to w with the mapped status code.
func (h *Handler) Write(w http.ResponseWriter, r *http.Request, err error) {
	se := h.Normalize(err)
	status := HTTPStatus(se.Code)

	fields := map[string]interface{}{
		"code":     string(se.Code),
		"details":  se.Details,
		"status":   status,
		"path":     r.URL.Path,
		"category": GetErrorCategory(se.Code),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(se.Message, fields)
	} else {
		h.logger.Warn(se.Message, fields)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: se})
}
