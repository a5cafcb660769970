// Package scraper triggers the external web scraper. Scrapes are slow and are
// never retried.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rag-assistant/internal/common/http"
	"rag-assistant/internal/common/logger"
)

const ServiceName = "scraper"

var (
	ErrScraperUnavailable = errors.New("SCRAPER_UNAVAILABLE")
	ErrScrapeFailed       = errors.New("SCRAPE_FAILED")
)

type Request struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// Response reports how many new pages the scraper stored.
type Response struct {
	NewURLs int    `json:"new_urls"`
	Message string `json:"message,omitempty"`
}

type Client struct {
	config *Config
	http   *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		http:   http.NewClient(config.Timeout, http.WithMaxRetries(0)),
		logger: log.With(map[string]interface{}{"component": ServiceName}),
	}
}

func (c *Client) Scrape(ctx context.Context, query, sessionID string) (*Response, error) {
	start := time.Now()
	var out Response
	_, err := c.http.PostJSON(ctx, strings.TrimRight(c.config.BaseURL, "/")+"/scrape", nil,
		Request{Query: query, SessionID: sessionID}, &out)
	if err != nil {
		if errors.Is(err, http.ErrUnreachable) {
			return nil, fmt.Errorf("%w: %v", ErrScraperUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrScrapeFailed, err)
	}

	c.logger.Info("scrape finished", map[string]interface{}{
		"sessionId":  sessionID,
		"newUrls":    out.NewURLs,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return &out, nil
}
