package inflight

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTracker shares in-flight keys between replicas using SET NX with an
// expiry. The stored value is the holder's start time in unix milliseconds.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisTracker namespaces keys under prefix, e.g. "rag:scrape:".
func NewRedisTracker(client *redis.Client, prefix string, ttl time.Duration) *RedisTracker {
	return &RedisTracker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *RedisTracker) TryAcquire(ctx context.Context, key string) (bool, time.Time, error) {
	now := r.now()
	// One retry covers the holder expiring between SET NX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.client.SetNX(ctx, r.prefix+key, strconv.FormatInt(now.UnixMilli(), 10), r.ttl).Result()
		if err != nil {
			return false, time.Time{}, fmt.Errorf("inflight acquire %q: %w", key, err)
		}
		if ok {
			return true, now, nil
		}

		started, held, err := r.Get(ctx, key)
		if err != nil {
			return false, time.Time{}, err
		}
		if held {
			return false, started, nil
		}
	}
	return false, now, nil
}

func (r *RedisTracker) Release(ctx context.Context, key string, startedAt time.Time) error {
	token := strconv.FormatInt(startedAt.UnixMilli(), 10)
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("inflight release %q: %w", key, err)
	}
	return nil
}

func (r *RedisTracker) Get(ctx context.Context, key string) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("inflight get %q: %w", key, err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// held, but by a writer we don't understand
		return r.now(), true, nil
	}
	return time.UnixMilli(ms), true, nil
}
