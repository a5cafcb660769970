package embedding

import (
	"time"

	"rag-assistant/internal/common/config"
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

// LoadConfig converts the service section of the application config.
func LoadConfig(cfg config.EmbeddingServiceConfig) *Config {
	c := DefaultConfig()
	c.BaseURL = cfg.BaseURL
	if cfg.Timeout > 0 {
		c.Timeout = config.GetDuration(cfg.Timeout)
	}
	if cfg.MaxRetries >= 0 {
		c.MaxRetries = cfg.MaxRetries
	}
	return c
}
