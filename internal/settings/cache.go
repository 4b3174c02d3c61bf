package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const cacheKey = "fixwell:settings:" + Key

// CachedStore decorates a Store with a Redis read-through cache. The
// document changes rarely and is read on nearly every request, so a short
// TTL keeps replicas consistent enough while the CAS in the inner store
// remains the source of truth.
type CachedStore struct {
	inner Store
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedStore wraps inner with a cache. A nil client disables caching.
func NewCachedStore(inner Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{inner: inner, rdb: rdb, ttl: ttl}
}

// Load returns the cached document when present, falling back to the inner
// store. Cache errors degrade to a direct load; they never fail the read.
func (c *CachedStore) Load(ctx context.Context) (Document, error) {
	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var doc Document
			if jsonErr := json.Unmarshal(data, &doc); jsonErr == nil {
				return doc, nil
			}
		}
		// redis.Nil and transport errors both degrade to a direct load
	}
	doc, err := c.inner.Load(ctx)
	if err != nil {
		return Document{}, err
	}
	c.fill(ctx, doc)
	return doc, nil
}

// Save writes through to the inner store and refreshes the cache only after
// the CAS succeeded. On conflict the cache entry is dropped so the next read
// observes the winner.
func (c *CachedStore) Save(ctx context.Context, doc Document, expectedVersion int) error {
	err := c.inner.Save(ctx, doc, expectedVersion)
	if c.rdb == nil {
		return err
	}
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			_ = c.rdb.Del(ctx, cacheKey).Err()
		}
		return err
	}
	c.fill(ctx, doc)
	return nil
}

func (c *CachedStore) fill(ctx context.Context, doc Document) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, cacheKey, data, c.ttl).Err()
}
