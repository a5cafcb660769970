// Package embedding is the client for the text embedding service.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rag-assistant/internal/common/http"
	"rag-assistant/internal/common/logger"
)

const ServiceName = "embedding"

var (
	ErrEmbeddingUnavailable = errors.New("EMBEDDING_UNAVAILABLE")
	ErrEmbeddingFailed      = errors.New("EMBEDDING_FAILED")
)

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type Client struct {
	config *Config
	http   *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		http:   http.NewClient(config.Timeout, http.WithMaxRetries(config.MaxRetries)),
		logger: log.With(map[string]interface{}{"component": ServiceName}),
	}
}

// Embed returns the vector for text. Unreachable or timed-out calls wrap
// ErrEmbeddingUnavailable; any other failure wraps ErrEmbeddingFailed.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout*time.Duration(c.config.MaxRetries+1))
	defer cancel()

	start := time.Now()
	var out embedResponse
	_, err := c.http.PostJSON(ctx, strings.TrimRight(c.config.BaseURL, "/")+"/embed", nil, embedRequest{Text: text}, &out)
	if err != nil {
		c.logger.Warn("embedding request failed", map[string]interface{}{
			"error":      err.Error(),
			"durationMs": time.Since(start).Milliseconds(),
		})
		if errors.Is(err, http.ErrUnreachable) || http.IsTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrEmbeddingFailed)
	}

	c.logger.Debug("embedded text", map[string]interface{}{
		"chars":      len(text),
		"dimension":  len(out.Embedding),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return out.Embedding, nil
}
