package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a fixed-size least-recently-used cache.
type LRU[K comparable, V any] struct {
	c *lru.Cache[K, V]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLRU creates an LRU cache holding at most capacity entries.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	c, err := lru.New[K, V](max(capacity, 1))
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &LRU[K, V]{c: c}
}

// Get returns a cached value and marks it recently used.
func (l *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := l.c.Get(key)
	if ok {
		l.hits.Add(1)
	} else {
		l.misses.Add(1)
	}
	return v, ok
}

// Add caches a value, evicting the least recently used entry when full.
func (l *LRU[K, V]) Add(key K, v V) { l.c.Add(key, v) }

// Len returns the number of cached entries.
func (l *LRU[K, V]) Len() int { return l.c.Len() }

// Purge removes all entries.
func (l *LRU[K, V]) Purge() { l.c.Purge() }

// Stats returns hit/miss statistics.
func (l *LRU[K, V]) Stats() (hits, misses int64) {
	return l.hits.Load(), l.misses.Load()
}
