package completion

import (
	"time"

	"rag-assistant/internal/common/config"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stop        []string
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:     60 * time.Second,
		MaxRetries:  1,
		Temperature: 0.2,
		MaxTokens:   512,
		TopP:        0.9,
	}
}

func LoadConfig(cfg config.CompletionServiceConfig) *Config {
	c := DefaultConfig()
	c.BaseURL = cfg.BaseURL
	c.APIKey = cfg.APIKey
	c.Model = cfg.Model
	if cfg.Timeout > 0 {
		c.Timeout = config.GetDuration(cfg.Timeout)
	}
	if cfg.MaxRetries >= 0 {
		c.MaxRetries = cfg.MaxRetries
	}
	c.Temperature = cfg.Temperature
	if cfg.MaxTokens > 0 {
		c.MaxTokens = cfg.MaxTokens
	}
	if cfg.TopP > 0 {
		c.TopP = cfg.TopP
	}
	c.Stop = cfg.Stop
	return c
}
