package cache

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Loader fills a cache on misses, computing each missing value once even
// when many goroutines ask for it concurrently.
type Loader[K comparable, V any] struct {
	cache Cache[K, V]
	group singleflight.Group
}

// NewLoader wraps c.
func NewLoader[K comparable, V any](c Cache[K, V]) *Loader[K, V] {
	return &Loader[K, V]{cache: c}
}

// Cache returns the underlying cache.
func (l *Loader[K, V]) Cache() Cache[K, V] { return l.cache }

// Get returns the cached value for key or computes it with load. Errors
// are returned to every waiter and not cached.
func (l *Loader[K, V]) Get(key K, load func() (V, error)) (V, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	res, err, _ := l.group.Do(fmt.Sprintf("%#v", key), func() (any, error) {
		v, err := load()
		if err != nil {
			return v, err
		}
		l.cache.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}
