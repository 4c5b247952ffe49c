package cache

import (
	"hash/maphash"
	"sync"
	"sync/atomic"
)

const numShards = 64

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// Unbounded is a sharded map cache that never evicts. It distributes
// entries across 64 shards to reduce lock contention during bulk preloads.
type Unbounded[K comparable, V any] struct {
	shards [numShards]shard[K, V]
	seed   maphash.Seed

	hits   atomic.Int64
	misses atomic.Int64
}

// NewUnbounded creates an empty unbounded cache.
func NewUnbounded[K comparable, V any]() *Unbounded[K, V] {
	u := &Unbounded[K, V]{seed: maphash.MakeSeed()}
	for i := range u.shards {
		u.shards[i].items = make(map[K]V)
	}
	return u
}

func (u *Unbounded[K, V]) shard(key K) *shard[K, V] {
	return &u.shards[maphash.Comparable(u.seed, key)%numShards]
}

// Get returns a cached value.
func (u *Unbounded[K, V]) Get(key K) (V, bool) {
	s := u.shard(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		u.hits.Add(1)
	} else {
		u.misses.Add(1)
	}
	return v, ok
}

// Add caches a value.
func (u *Unbounded[K, V]) Add(key K, v V) {
	s := u.shard(key)
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

// Len returns the total number of entries across all shards.
func (u *Unbounded[K, V]) Len() int {
	n := 0
	for i := range u.shards {
		s := &u.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Purge removes all entries.
func (u *Unbounded[K, V]) Purge() {
	for i := range u.shards {
		s := &u.shards[i]
		s.mu.Lock()
		clear(s.items)
		s.mu.Unlock()
	}
}

// Stats returns hit/miss statistics.
func (u *Unbounded[K, V]) Stats() (hits, misses int64) {
	return u.hits.Load(), u.misses.Load()
}

// shardSizes reports per-shard entry counts for distribution checks.
func (u *Unbounded[K, V]) shardSizes() []int {
	sizes := make([]int, numShards)
	for i := range u.shards {
		s := &u.shards[i]
		s.mu.RLock()
		sizes[i] = len(s.items)
		s.mu.RUnlock()
	}
	return sizes
}
