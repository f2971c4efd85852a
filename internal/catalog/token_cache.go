package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// TokenKey is where RedisTokenStore keeps the shared catalog token.
	TokenKey = "catalog_m2m_token"
	// TokenExpiryBuffer refreshes tokens this long before they expire.
	TokenExpiryBuffer = 60 * time.Second
)

// TokenCache is a bearer token with its expiry.
type TokenCache struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid reports whether the token can still be used at now.
func (tc *TokenCache) IsValid(now time.Time) bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return now.Add(TokenExpiryBuffer).Before(tc.ExpiresAt)
}

// TokenStore persists the current token. Get returns nil, nil on a miss.
type TokenStore interface {
	Get(ctx context.Context) (*TokenCache, error)
	Set(ctx context.Context, tc *TokenCache) error
}

// MemoryTokenStore keeps the token for one process.
type MemoryTokenStore struct {
	mu sync.Mutex
	tc *TokenCache
}

func (m *MemoryTokenStore) Get(context.Context) (*TokenCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tc == nil {
		return nil, nil
	}
	cp := *m.tc
	return &cp, nil
}

func (m *MemoryTokenStore) Set(_ context.Context, tc *TokenCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tc
	m.tc = &cp
	return nil
}

// RedisTokenStore shares the token between instances.
type RedisTokenStore struct {
	Client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{Client: client}
}

func (r *RedisTokenStore) Get(ctx context.Context) (*TokenCache, error) {
	raw, err := r.Client.Get(ctx, TokenKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}

	var tc TokenCache
	if err := json.Unmarshal([]byte(raw), &tc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token cache: %w", err)
	}
	return &tc, nil
}

func (r *RedisTokenStore) Set(ctx context.Context, tc *TokenCache) error {
	raw, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}
	ttl := time.Until(tc.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := r.Client.Set(ctx, TokenKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token in Redis: %w", err)
	}
	return nil
}
