package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/persistorai/cadence/internal/models"
)

const (
	userCacheTTL       = 5 * time.Minute
	maxCacheEntries    = 10000
	cacheCleanupPeriod = 60 * time.Second
)

type cachedUser struct {
	user      *models.User
	fetchedAt time.Time
}

// identityKey hashes every identity field so that an email or name change
// at the identity provider misses the cache and refreshes the stored user.
func identityKey(id models.Identity) string {
	h := sha256.New()
	for _, part := range []string{id.ExternalID, id.Email, id.Name} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "idp:" + hex.EncodeToString(h.Sum(nil))
}

// CachedUserResolver wraps a UserResolver with a bounded in-memory cache so
// that authenticated requests do not upsert the user every time. Concurrent
// misses for one key share a single inner call.
type CachedUserResolver struct {
	inner  UserResolver
	mu     sync.RWMutex
	cache  map[string]cachedUser
	flight singleflight.Group
}

// NewCachedUserResolver creates a caching wrapper around the given UserResolver.
// The provided context controls the lifetime of the background eviction goroutine.
func NewCachedUserResolver(ctx context.Context, inner UserResolver) *CachedUserResolver {
	c := &CachedUserResolver{
		inner: inner,
		cache: make(map[string]cachedUser),
	}
	go c.evictLoop(ctx)
	return c
}

// evictLoop periodically removes expired entries from the cache.
func (c *CachedUserResolver) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheCleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpired(time.Now())
			c.mu.Unlock()
		}
	}
}

// evictExpired drops stale entries. Caller must hold c.mu.
func (c *CachedUserResolver) evictExpired(now time.Time) {
	for k, v := range c.cache {
		if now.Sub(v.fetchedAt) >= userCacheTTL {
			delete(c.cache, k)
		}
	}
}

// FindOrCreate returns the cached user for the identity or delegates to the
// inner resolver. Failures are not cached.
func (c *CachedUserResolver) FindOrCreate(ctx context.Context, id models.Identity) (*models.User, error) {
	return c.lookup(identityKey(id), func() (*models.User, error) {
		return c.inner.FindOrCreate(ctx, id)
	})
}

// Get returns the cached user by id or delegates to the inner resolver.
func (c *CachedUserResolver) Get(ctx context.Context, userID string) (*models.User, error) {
	return c.lookup("id:"+userID, func() (*models.User, error) {
		return c.inner.Get(ctx, userID)
	})
}

func (c *CachedUserResolver) lookup(key string, fetch func() (*models.User, error)) (*models.User, error) {
	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < userCacheTTL {
		return entry.user, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		u, err := fetch()
		if err != nil {
			return nil, err
		}
		c.store(key, u)
		return u, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.User), nil //nolint:forcetypeassert // the flight only yields *models.User.
}

// store caches u, evicting expired entries and then arbitrary ones when full.
func (c *CachedUserResolver) store(key string, u *models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= maxCacheEntries {
		c.evictExpired(time.Now())
		for k := range c.cache {
			if len(c.cache) < maxCacheEntries {
				break
			}
			delete(c.cache, k)
		}
	}
	c.cache[key] = cachedUser{user: u, fetchedAt: time.Now()}
}
