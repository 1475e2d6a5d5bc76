// Package replay guards webhook deliveries against replays.
package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard claims a delivery key for ttl. Claim reports false when the key is
// already held.
type Guard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisGuard claims keys with SET NX EX, shared by every API instance.
type RedisGuard struct {
	client *redis.Client
}

// NewRedisGuard creates a RedisGuard.
func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

// Claim atomically sets key if absent.
func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming replay key: %w", err)
	}

	return ok, nil
}

// MemoryGuard is a single-process Guard used when Redis is not configured.
type MemoryGuard struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryGuard creates a MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: make(map[string]time.Time), now: time.Now}
}

// Claim sets key if absent or expired. Expired keys are swept on each call.
func (g *MemoryGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.keys {
		if !now.Before(exp) {
			delete(g.keys, k)
		}
	}

	if _, held := g.keys[key]; held {
		return false, nil
	}
	g.keys[key] = now.Add(ttl)

	return true, nil
}

// NewClient connects to Redis at addr and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return client, nil
}
