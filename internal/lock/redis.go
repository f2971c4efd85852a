package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	keyPrefix    = "payment_lock:"
	pollInterval = 25 * time.Millisecond
)

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX and a TTL, so a crashed holder frees
// the key after ttl.
type Redis struct {
	Client  *redis.Client
	TTL     time.Duration
	MaxWait time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{Client: client, TTL: ttl, MaxWait: ttl}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := keyPrefix + key
	token := uuid.NewString()

	if r.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.MaxWait)
		defer cancel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.Client.SetNX(ctx, fullKey, token, r.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire %s: %w", fullKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Released on a fresh context so a cancelled request still frees the key.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			releaseScript.Run(releaseCtx, r.Client, []string{fullKey}, token)
		})
	}, nil
}

// Held reports whether key is currently locked by anyone.
func (r *Redis) Held(ctx context.Context, key string) (bool, error) {
	n, err := r.Client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
