// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Services  ServicesConfig  `mapstructure:"services"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Cache     CacheConfig     `mapstructure:"cache"`
	InFlight  InFlightConfig  `mapstructure:"inflight"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	PageSize  int      `mapstructure:"page_size"`
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Storage backend names.
const (
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
	BackendMemory        = "memory"
	BackendRedis         = "redis"
)

// StorageConfig selects where chunks, turns and shared request state live.
type StorageConfig struct {
	Chunks string `mapstructure:"chunks"` // postgres | elasticsearch | memory
	Turns  string `mapstructure:"turns"`  // postgres | memory
	State  string `mapstructure:"state"`  // memory | redis
}

type ServicesConfig struct {
	Embedding  EmbeddingServiceConfig  `mapstructure:"embedding"`
	Completion CompletionServiceConfig `mapstructure:"completion"`
	Scraper    ScraperServiceConfig    `mapstructure:"scraper"`
}

type EmbeddingServiceConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
}

type CompletionServiceConfig struct {
	BaseURL     string   `mapstructure:"base_url"`
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	Timeout     int      `mapstructure:"timeout"` // milliseconds
	MaxRetries  int      `mapstructure:"max_retries"`
	Temperature float64  `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
	TopP        float64  `mapstructure:"top_p"`
	Stop        []string `mapstructure:"stop"`
}

type ScraperServiceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// RetrievalConfig tunes ranking, sufficiency and prompt sizing.
type RetrievalConfig struct {
	TopK               int     `mapstructure:"top_k"`
	Threshold          float64 `mapstructure:"threshold"`
	RelaxedThreshold   float64 `mapstructure:"relaxed_threshold"`
	ChunkCharBudget    int     `mapstructure:"chunk_char_budget"`
	PreviewChars       int     `mapstructure:"preview_chars"`
	HistoryLimit       int     `mapstructure:"history_limit"`
	PromptHistoryTurns int     `mapstructure:"prompt_history_turns"`
}

type CacheConfig struct {
	TTL         int `mapstructure:"ttl"` // milliseconds
	MaxSessions int `mapstructure:"max_sessions"`
}

type InFlightConfig struct {
	ScrapeTTL  int `mapstructure:"scrape_ttl"`  // milliseconds
	RequestTTL int `mapstructure:"request_ttl"` // milliseconds
}

// IngestConfig drives the batch ingestion command.
type IngestConfig struct {
	ChunkSize      int    `mapstructure:"chunk_size"`
	Overlap        int    `mapstructure:"overlap"`
	MinWords       int    `mapstructure:"min_words"`
	CheckpointFile string `mapstructure:"checkpoint_file"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryBackoff   int    `mapstructure:"retry_backoff"` // milliseconds
}
