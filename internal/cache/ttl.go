// Package cache provides a size-bounded cache whose entries expire after a
// fixed time-to-live.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// TTL is a generic expiring LRU cache with single-flight loading.
type TTL[K comparable, V any] struct {
	lru   *expirable.LRU[K, V]
	group singleflight.Group
	key   func(K) string
}

// NewTTL builds a cache holding at most size entries, each living for ttl.
// keyString renders keys for single-flight deduplication.
func NewTTL[K comparable, V any](size int, ttl time.Duration, keyString func(K) string) *TTL[K, V] {
	if size <= 0 {
		size = 128
	}
	return &TTL[K, V]{
		lru: expirable.NewLRU[K, V](size, nil, ttl),
		key: keyString,
	}
}

// Get returns the cached value when present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *TTL[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Remove drops key from the cache.
func (c *TTL[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *TTL[K, V]) Purge() {
	c.lru.Purge()
}

// Len reports the number of entries, including expired ones not yet reaped.
func (c *TTL[K, V]) Len() int {
	return c.lru.Len()
}

// GetOrLoad returns the cached value or calls load once per key across
// concurrent callers and caches a successful result.
func (c *TTL[K, V]) GetOrLoad(ctx context.Context, key K, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(c.key(key), func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// StringKey is the keyString function for string-keyed caches.
func StringKey(s string) string { return s }
