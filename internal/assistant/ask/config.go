package ask

import (
	"time"

	"rag-assistant/internal/common/config"
)

type Config struct {
	HistoryLimit int
	PreviewChars int
	// ReleaseTimeout bounds marker cleanup after the request context is gone.
	ReleaseTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		HistoryLimit:   20,
		PreviewChars:   200,
		ReleaseTimeout: 5 * time.Second,
	}
}

// LoadConfig derives the handler settings from the retrieval section.
func LoadConfig(cfg config.RetrievalConfig) *Config {
	c := DefaultConfig()
	if cfg.HistoryLimit > 0 {
		c.HistoryLimit = cfg.HistoryLimit
	}
	if cfg.PreviewChars > 0 {
		c.PreviewChars = cfg.PreviewChars
	}
	return c
}
