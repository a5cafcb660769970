package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 5

// RedisCache stores entries as JSON under prefix+sessionID with a TTL. Merges
// run inside WATCH/MULTI so concurrent writers never drop links.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) (*Entry, error) {
	return c.load(ctx, c.client, c.prefix+sessionID)
}

func (c *RedisCache) Put(ctx context.Context, sessionID string, u Update) error {
	key := c.prefix + sessionID

	txf := func(tx *redis.Tx) error {
		prev, err := c.load(ctx, tx, key)
		if err != nil {
			return err
		}
		data, err := json.Marshal(apply(prev, sessionID, u, c.now()))
		if err != nil {
			return fmt.Errorf("encode session cache entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := c.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("session cache put %q: %w", sessionID, err)
	}
	return fmt.Errorf("session cache put %q: too much contention", sessionID)
}

func (c *RedisCache) Clear(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.prefix+sessionID).Err(); err != nil {
		return fmt.Errorf("session cache clear %q: %w", sessionID, err)
	}
	return nil
}

func (c *RedisCache) load(ctx context.Context, r redis.Cmdable, key string) (*Entry, error) {
	data, err := r.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session cache get %q: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// unreadable entries are treated as absent and overwritten on next put
		return nil, nil
	}
	return &e, nil
}
