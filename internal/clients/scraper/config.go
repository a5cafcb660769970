package scraper

import (
	"time"

	"rag-assistant/internal/common/config"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func LoadConfig(cfg config.ScraperServiceConfig) *Config {
	c := &Config{BaseURL: cfg.BaseURL, Timeout: 5 * time.Minute}
	if cfg.Timeout > 0 {
		c.Timeout = config.GetDuration(cfg.Timeout)
	}
	return c
}
