// Package completion talks to an OpenAI-compatible chat completions endpoint.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rag-assistant/internal/common/http"
	"rag-assistant/internal/common/logger"
)

const ServiceName = "completion"

var (
	ErrCompletionUnavailable = errors.New("COMPLETION_UNAVAILABLE")
	ErrCompletionFailed      = errors.New("COMPLETION_FAILED")
)

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

// Complete returns the text of the first choice, trimmed. An empty string
// means the service answered without content; callers substitute their own
// fallback.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	req := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		TopP:        c.config.TopP,
		Stop:        c.config.Stop,
	}

	var headers map[string]string
	if c.config.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.config.APIKey}
	}

	start := time.Now()
	var out chatResponse
	_, err := c.http.PostJSON(ctx, strings.TrimRight(c.config.BaseURL, "/")+"/chat/completions", headers, req, &out)
	if err != nil {
		c.logger.Error("completion request failed", map[string]interface{}{
			"error":      err.Error(),
			"messages":   len(messages),
			"durationMs": time.Since(start).Milliseconds(),
		})
		if errors.Is(err, http.ErrUnreachable) || http.IsTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
		}
		return "", fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	text := ""
	if len(out.Choices) > 0 {
		text = strings.TrimSpace(out.Choices[0].Message.Content)
	}
	c.logger.Info("completion received", map[string]interface{}{
		"messages":   len(messages),
		"chars":      len(text),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return text, nil
}
