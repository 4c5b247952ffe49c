package cache

// Cache maps keys to immutable values. Implementations are safe for
// concurrent use; callers must not modify returned values.
type Cache[K comparable, V any] interface {
	// Get returns a cached value. ok=false if missing.
	Get(key K) (v V, ok bool)
	// Add caches a value, possibly evicting another.
	Add(key K, v V)
	// Len returns the number of cached entries.
	Len() int
	// Purge removes all entries.
	Purge()
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}

// New returns the cache tier for capacity: an LRU of that many entries when
// positive and unbounded otherwise.
func New[K comparable, V any](capacity int) Cache[K, V] {
	if capacity > 0 {
		return NewLRU[K, V](capacity)
	}
	return NewUnbounded[K, V]()
}
