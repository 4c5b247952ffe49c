// Package cache provides the in-memory caches that sit in front of the
// SQLite store.
//
// Two tiers are selected by a single capacity value:
//   - capacity <= 0: Unbounded, a 64-way sharded map that never evicts
//   - capacity > 0: LRU, bounded by entry count
//
// Loader adds singleflight deduplication so concurrent misses for the same
// key compute the value once.
package cache
