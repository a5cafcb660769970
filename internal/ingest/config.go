package ingest

import (
	"time"

	"rag-assistant/internal/common/config"
)

type Config struct {
	ChunkSize    int
	Overlap      int
	MinWords     int
	MaxRetries   int
	RetryBackoff time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		ChunkSize:    500,
		Overlap:      50,
		MinWords:     150,
		MaxRetries:   2,
		RetryBackoff: 3 * time.Second,
	}
}

func LoadConfig(cfg config.IngestConfig) *Config {
	c := DefaultConfig()
	if cfg.ChunkSize > 0 {
		c.ChunkSize = cfg.ChunkSize
	}
	if cfg.Overlap > 0 && cfg.Overlap < c.ChunkSize {
		c.Overlap = cfg.Overlap
	}
	if cfg.MinWords > 0 {
		c.MinWords = cfg.MinWords
	}
	if cfg.MaxRetries > 0 {
		c.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBackoff > 0 {
		c.RetryBackoff = config.GetDuration(cfg.RetryBackoff)
	}
	return c
}
