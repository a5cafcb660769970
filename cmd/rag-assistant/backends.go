package main

import (
	"context"
	"fmt"
	"time"

	"rag-assistant/internal/assistant/inflight"
	"rag-assistant/internal/assistant/sessioncache"
	"rag-assistant/internal/common/config"
	"rag-assistant/internal/common/database"
	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/models"
	"rag-assistant/internal/storage/elasticsearch"
	"rag-assistant/internal/storage/memory"
	"rag-assistant/internal/storage/postgres"
)

// backends holds the stores selected by the storage section.
type backends struct {
	chunks   models.ChunkRepository
	turns    models.TurnRepository
	checkers []database.Checker
	pg       *database.PostgresClient
	redis    *database.RedisClient
	closers  []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

// retryWithBackoff retries operation with doubling delays.
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if i < maxRetries-1 {
			log.Warn(operationName+" failed, retrying", map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func openBackends(ctx context.Context, cfg *config.Config, log logger.Logger) (*backends, error) {
	b := &backends{}
	var mem *memory.Store
	sharedMemory := func() *memory.Store {
		if mem == nil {
			mem = memory.NewStore()
			b.checkers = append(b.checkers, mem)
		}
		return mem
	}

	if cfg.UsesPostgres() {
		err := retryWithBackoff(ctx, func() error {
			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				_ = pg.Close()
				return err
			}
			b.pg = pg
			return nil
		}, 10, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, b.pg.Close)
		b.checkers = append(b.checkers, b.pg)
		log.Info("PostgreSQL connected", nil)
	}

	switch cfg.Storage.Chunks {
	case config.BackendPostgres:
		b.chunks = postgres.NewChunkStore(b.pg.DB, log)
	case config.BackendElasticsearch:
		var es *database.ElasticsearchClient
		err := retryWithBackoff(ctx, func() error {
			var err error
			if es, err = database.NewElasticsearch(cfg.Database.Elasticsearch); err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 10, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			b.Close()
			return nil, err
		}
		b.checkers = append(b.checkers, es)
		b.chunks = elasticsearch.NewChunkStore(es.Client, es.Index, cfg.Database.Elasticsearch.PageSize, log)
		log.Info("Elasticsearch connected", map[string]interface{}{"index": es.Index})
	default:
		b.chunks = sharedMemory()
	}

	if cfg.Storage.Turns == config.BackendPostgres {
		b.turns = postgres.NewTurnStore(b.pg.DB)
	} else {
		b.turns = sharedMemory()
	}

	if cfg.Storage.State == config.BackendRedis {
		err := retryWithBackoff(ctx, func() error {
			rc, err := database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			if err := rc.Ping(ctx); err != nil {
				_ = rc.Close()
				return err
			}
			b.redis = rc
			return nil
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, b.redis.Close)
		b.checkers = append(b.checkers, b.redis)
		log.Info("Redis connected", nil)
	}

	log.Info("storage ready", map[string]interface{}{
		"chunks": cfg.Storage.Chunks,
		"turns":  cfg.Storage.Turns,
		"state":  cfg.Storage.State,
	})
	return b, nil
}

// state builds the request/scrape trackers and the session cache on the
// configured state backend.
func (b *backends) state(cfg *config.Config) (requests, scrapes inflight.Tracker, cache sessioncache.Cache) {
	requestTTL := config.GetDuration(cfg.InFlight.RequestTTL)
	scrapeTTL := config.GetDuration(cfg.InFlight.ScrapeTTL)
	cacheTTL := config.GetDuration(cfg.Cache.TTL)

	if b.redis != nil {
		prefix := cfg.Database.Redis.KeyPrefix
		return inflight.NewRedisTracker(b.redis.Client, prefix+"request:", requestTTL),
			inflight.NewRedisTracker(b.redis.Client, prefix+"scrape:", scrapeTTL),
			sessioncache.NewRedisCache(b.redis.Client, prefix+"session:", cacheTTL)
	}
	return inflight.NewMemoryTracker(requestTTL),
		inflight.NewMemoryTracker(scrapeTTL),
		sessioncache.NewMemoryCache(cacheTTL, cfg.Cache.MaxSessions)
}
