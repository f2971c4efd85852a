package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	require.NoError(t, client.Ping(context.Background()).Err())
	return client, mr
}

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "tx1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocal_MutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal())
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "tx1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "tx1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	release()

	release, err = l.Acquire(context.Background(), "tx1")
	require.NoError(t, err)
	release()

	l.mu.Lock()
	assert.Empty(t, l.locks)
	l.mu.Unlock()
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal()
	r1, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r2, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	r2()
}

func TestRedis_MutualExclusion(t *testing.T) {
	client, _ := setupTestRedis(t)
	exerciseMutualExclusion(t, NewRedis(client, 5*time.Second))
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewRedis(client, time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "tx1")
	require.NoError(t, err)

	// The TTL lapses and somebody else takes the key.
	mr.FastForward(2 * time.Second)
	require.NoError(t, client.Set(ctx, keyPrefix+"tx1", "other", time.Minute).Err())

	release()
	held, err := l.Held(ctx, "tx1")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestRedis_WaitRunsOut(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewRedis(client, time.Minute)
	l.MaxWait = 60 * time.Millisecond

	release, err := l.Acquire(context.Background(), "tx1")
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background(), "tx1")
	assert.ErrorIs(t, err, ErrNotAcquired)
}
