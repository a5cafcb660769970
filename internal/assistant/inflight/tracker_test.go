package inflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func trackers(t *testing.T) map[string]Tracker {
	_, rdb := setupRedis(t)
	return map[string]Tracker{
		"memory": NewMemoryTracker(time.Minute),
		"redis":  NewRedisTracker(rdb, "test:", time.Minute),
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "s1:capital of france", Key("s1", "  Capital of   France? "))
}

func TestTracker_AcquireReleaseCycle(t *testing.T) {
	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, first, err := tr.TryAcquire(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, started, err := tr.TryAcquire(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.WithinDuration(t, first, started, time.Millisecond)

			got, held, err := tr.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, held)
			assert.WithinDuration(t, first, got, time.Millisecond)

			require.NoError(t, tr.Release(ctx, "k", first))
			require.NoError(t, tr.Release(ctx, "k", first))

			_, held, err = tr.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, held)

			ok, _, err = tr.TryAcquire(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestTracker_ConcurrentAcquireHasOneWinner(t *testing.T) {
	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, _, err := tr.TryAcquire(context.Background(), "race")
					assert.NoError(t, err)
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestMemoryTracker_Expiry(t *testing.T) {
	tr := NewMemoryTracker(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _, _ := tr.TryAcquire(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, tr.Len())

	now = now.Add(time.Minute)
	_, held, _ := tr.Get(ctx, "a")
	assert.False(t, held)

	ok, started, _ := tr.TryAcquire(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, now, started)
}

func TestRedisTracker_Expiry(t *testing.T) {
	mr, rdb := setupRedis(t)
	tr := NewRedisTracker(rdb, "test:", time.Minute)
	ctx := context.Background()

	ok, _, err := tr.TryAcquire(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("test:a"))

	mr.FastForward(time.Minute + time.Second)

	ok, _, err = tr.TryAcquire(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisTracker_Errors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	tr := NewRedisTracker(db, "p:", time.Minute)
	fixed := time.UnixMilli(1700000000000)
	tr.now = func() time.Time { return fixed }
	ctx := context.Background()

	mock.ExpectSetNX("p:k", "1700000000000", time.Minute).SetErr(errors.New("connection reset"))
	_, _, err := tr.TryAcquire(ctx, "k")
	assert.ErrorContains(t, err, "connection reset")

	mock.ExpectEvalSha(releaseScript.Hash(), []string{"p:k"}, "1700000000000").SetErr(errors.New("readonly"))
	assert.ErrorContains(t, tr.Release(ctx, "k", fixed), "readonly")

	mock.ExpectGet("p:k").SetVal("garbage")
	started, held, err := tr.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, fixed, started)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryTracker_ReleaseKeepsNewerHolder(t *testing.T) {
	tr := NewMemoryTracker(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	ok, stale, _ := tr.TryAcquire(ctx, "a")
	require.True(t, ok)

	now = now.Add(time.Minute + time.Second)
	ok, fresh, _ := tr.TryAcquire(ctx, "a")
	require.True(t, ok)

	require.NoError(t, tr.Release(ctx, "a", stale))
	started, held, _ := tr.Get(ctx, "a")
	assert.True(t, held)
	assert.Equal(t, fresh, started)

	require.NoError(t, tr.Release(ctx, "a", fresh))
	_, held, _ = tr.Get(ctx, "a")
	assert.False(t, held)
}

func TestRedisTracker_ReleaseKeepsNewerHolder(t *testing.T) {
	mr, rdb := setupRedis(t)
	tr := NewRedisTracker(rdb, "test:", time.Minute)
	now := time.UnixMilli(1700000000000)
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	ok, stale, err := tr.TryAcquire(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(time.Minute + time.Second)
	now = now.Add(time.Minute + time.Second)
	ok, fresh, err := tr.TryAcquire(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tr.Release(ctx, "a", stale))
	assert.True(t, mr.Exists("test:a"))

	require.NoError(t, tr.Release(ctx, "a", fresh))
	assert.False(t, mr.Exists("test:a"))
}
