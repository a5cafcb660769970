// Package errors provides the service-wide error taxonomy and its HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeRequestInProgress ErrorCode = "REQUEST_IN_PROGRESS"

	ErrCodeEmbeddingUnavailable  ErrorCode = "EMBEDDING_UNAVAILABLE"
	ErrCodeEmbeddingFailed       ErrorCode = "EMBEDDING_FAILED"
	ErrCodeCompletionUnavailable ErrorCode = "COMPLETION_UNAVAILABLE"
	ErrCodeCompletionFailed      ErrorCode = "COMPLETION_FAILED"
	ErrCodeStorageUnavailable    ErrorCode = "STORAGE_UNAVAILABLE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewInvalidInputError rejects a request before any side effect.
func NewInvalidInputError(details string) *StandardError {
	e := newError(ErrCodeInvalidInput, "Invalid request", nil, false)
	e.Details = details
	return e
}

// NewRequestInProgressError signals that an identical request is still being processed.
func NewRequestInProgressError(key string) *StandardError {
	e := newError(ErrCodeRequestInProgress, "An identical request is already in progress", nil, true)
	e.Details = fmt.Sprintf("key: %s", key)
	return e
}

func NewEmbeddingUnavailableError(err error) *StandardError {
	return newError(ErrCodeEmbeddingUnavailable, "Embedding service unavailable", err, true)
}

func NewEmbeddingFailedError(err error) *StandardError {
	return newError(ErrCodeEmbeddingFailed, "Embedding service error", err, true)
}

func NewCompletionUnavailableError(err error) *StandardError {
	return newError(ErrCodeCompletionUnavailable, "Completion service unavailable", err, true)
}

func NewCompletionFailedError(err error) *StandardError {
	return newError(ErrCodeCompletionFailed, "Completion service error", err, true)
}

func NewStorageUnavailableError(operation string, err error) *StandardError {
	e := newError(ErrCodeStorageUnavailable, "Storage unavailable", err, true)
	return e.WithMetadata("operation", operation)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// AsStandardError extracts a *StandardError from an error chain.
func AsStandardError(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HTTPStatus maps an error code to the status returned to callers.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeRequestInProgress:
		return http.StatusTooManyRequests
	}

	s := string(code)
	switch {
	case strings.HasSuffix(s, "_UNAVAILABLE"):
		return http.StatusServiceUnavailable
	case strings.HasSuffix(s, "_FAILED"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryableErrorCode reports whether a caller may retry the same request.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeRequestInProgress,
		ErrCodeEmbeddingUnavailable, ErrCodeEmbeddingFailed,
		ErrCodeCompletionUnavailable, ErrCodeCompletionFailed,
		ErrCodeStorageUnavailable:
		return true
	default:
		return false
	}
}

// GetErrorCategory groups codes for metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidInput:
		return "input"
	case ErrCodeRequestInProgress:
		return "duplicate"
	case ErrCodeEmbeddingUnavailable, ErrCodeEmbeddingFailed,
		ErrCodeCompletionUnavailable, ErrCodeCompletionFailed,
		ErrCodeStorageUnavailable:
		return "upstream"
	default:
		return "internal"
	}
}
