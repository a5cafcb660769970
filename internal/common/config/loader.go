// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "RAG"

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top,
// applies RAG_* environment overrides and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)
	return v
}

// AutomaticEnv only sees keys viper already knows about, so keys that may be
// absent from the yaml are bound explicitly.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"database.postgres.host", "database.postgres.port", "database.postgres.database",
		"database.postgres.user", "database.postgres.password",
		"database.redis.address", "database.redis.password",
		"database.elasticsearch.addresses",
		"storage.chunks", "storage.turns", "storage.state",
		"services.embedding.base_url", "services.completion.base_url",
		"services.completion.api_key", "services.completion.model",
		"services.scraper.base_url",
		"server.address", "logging.level", "logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "rag-assistant"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 180000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "website_chunks"
	}
	if cfg.Database.Elasticsearch.PageSize == 0 {
		cfg.Database.Elasticsearch.PageSize = 1000
	}
	if cfg.Database.Redis.KeyPrefix == "" {
		cfg.Database.Redis.KeyPrefix = "rag:"
	}

	if cfg.Storage.Chunks == "" {
		cfg.Storage.Chunks = BackendPostgres
	}
	if cfg.Storage.Turns == "" {
		cfg.Storage.Turns = BackendPostgres
	}
	if cfg.Storage.State == "" {
		cfg.Storage.State = BackendMemory
	}

	if cfg.Services.Embedding.Timeout == 0 {
		cfg.Services.Embedding.Timeout = 10000
	}
	if cfg.Services.Embedding.MaxRetries == 0 {
		cfg.Services.Embedding.MaxRetries = 2
	}
	if cfg.Services.Completion.Timeout == 0 {
		cfg.Services.Completion.Timeout = 60000
	}
	if cfg.Services.Completion.MaxRetries == 0 {
		cfg.Services.Completion.MaxRetries = 1
	}
	if cfg.Services.Completion.Temperature == 0 {
		cfg.Services.Completion.Temperature = 0.2
	}
	if cfg.Services.Completion.MaxTokens == 0 {
		cfg.Services.Completion.MaxTokens = 800
	}
	if cfg.Services.Completion.TopP == 0 {
		cfg.Services.Completion.TopP = 0.9
	}
	if len(cfg.Services.Completion.Stop) == 0 {
		cfg.Services.Completion.Stop = []string{"\nUser:", "\nQuestion:"}
	}
	if cfg.Services.Scraper.Timeout == 0 {
		cfg.Services.Scraper.Timeout = 300000
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = 0.55
	}
	if cfg.Retrieval.RelaxedThreshold == 0 {
		cfg.Retrieval.RelaxedThreshold = 0.45
	}
	if cfg.Retrieval.ChunkCharBudget == 0 {
		cfg.Retrieval.ChunkCharBudget = 1000
	}
	if cfg.Retrieval.PreviewChars == 0 {
		cfg.Retrieval.PreviewChars = 200
	}
	if cfg.Retrieval.HistoryLimit == 0 {
		cfg.Retrieval.HistoryLimit = 20
	}
	if cfg.Retrieval.PromptHistoryTurns == 0 {
		cfg.Retrieval.PromptHistoryTurns = 6
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 3600000
	}
	if cfg.Cache.MaxSessions == 0 {
		cfg.Cache.MaxSessions = 10000
	}
	if cfg.InFlight.ScrapeTTL == 0 {
		cfg.InFlight.ScrapeTTL = 600000
	}
	if cfg.InFlight.RequestTTL == 0 {
		cfg.InFlight.RequestTTL = 300000
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 500
	}
	if cfg.Ingest.Overlap == 0 {
		cfg.Ingest.Overlap = 50
	}
	if cfg.Ingest.MinWords == 0 {
		cfg.Ingest.MinWords = 150
	}
	if cfg.Ingest.CheckpointFile == "" {
		cfg.Ingest.CheckpointFile = "scraped_data/last_embedded.txt"
	}
	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = 2
	}
	if cfg.Ingest.RetryBackoff == 0 {
		cfg.Ingest.RetryBackoff = 3000
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	switch cfg.Storage.Chunks {
	case BackendPostgres, BackendElasticsearch, BackendMemory:
	default:
		return fmt.Errorf("storage.chunks must be postgres, elasticsearch or memory, got %q", cfg.Storage.Chunks)
	}
	switch cfg.Storage.Turns {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("storage.turns must be postgres or memory, got %q", cfg.Storage.Turns)
	}
	switch cfg.Storage.State {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("storage.state must be memory or redis, got %q", cfg.Storage.State)
	}

	if cfg.UsesPostgres() {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}
	if cfg.Storage.Chunks == BackendElasticsearch && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required")
	}
	if cfg.Storage.State == BackendRedis && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Services.Embedding.BaseURL == "" {
		return fmt.Errorf("services.embedding.base_url is required")
	}
	if cfg.Services.Completion.BaseURL == "" {
		return fmt.Errorf("services.completion.base_url is required")
	}
	if cfg.Services.Scraper.BaseURL == "" {
		return fmt.Errorf("services.scraper.base_url is required")
	}

	r := cfg.Retrieval
	if r.Threshold < 0 || r.Threshold > 1 || r.RelaxedThreshold < 0 || r.RelaxedThreshold > 1 {
		return fmt.Errorf("retrieval thresholds must be within [0,1]")
	}
	if r.RelaxedThreshold > r.Threshold {
		return fmt.Errorf("retrieval.relaxed_threshold must not exceed retrieval.threshold")
	}
	if worst := cfg.WorstCaseUpstream(); cfg.InFlight.RequestTTL <= worst {
		return fmt.Errorf("inflight.request_ttl must exceed the worst-case upstream time of %dms", worst)
	}
	if cfg.Ingest.Overlap >= cfg.Ingest.ChunkSize {
		return fmt.Errorf("ingest.overlap must be smaller than ingest.chunk_size")
	}
	return nil
}

// UsesPostgres reports whether any store is backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.Storage.Chunks == BackendPostgres || c.Storage.Turns == BackendPostgres
}

// WorstCaseUpstream is the longest an ask can spend in the embedding and
// completion services, in milliseconds, with every retry timing out.
func (c *Config) WorstCaseUpstream() int {
	e, g := c.Services.Embedding, c.Services.Completion
	return e.Timeout*(e.MaxRetries+1) + g.Timeout*(g.MaxRetries+1)
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
