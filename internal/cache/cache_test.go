package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTiers(t *testing.T) {
	assert.IsType(t, &Unbounded[string, int]{}, New[string, int](-1))
	assert.IsType(t, &Unbounded[string, int]{}, New[string, int](0))
	assert.IsType(t, &LRU[string, int]{}, New[string, int](10))
}

func TestUnbounded(t *testing.T) {
	c := NewUnbounded[string, int]()

	c.Add("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	for i := range 1000 {
		c.Add(fmt.Sprintf("key-%d", i), i)
	}
	assert.Equal(t, 1001, c.Len())

	nonEmpty := 0
	for _, n := range c.shardSizes() {
		if n > 0 {
			nonEmpty++
		}
	}
	assert.Greater(t, nonEmpty, 30, "poor shard distribution")

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestLRUEviction(t *testing.T) {
	c := NewLRU[int, string](2)
	c.Add(1, "one")
	c.Add(2, "two")

	// Touch 1 so 2 becomes the eviction candidate.
	_, ok := c.Get(1)
	require.True(t, ok)

	c.Add(3, "three")
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get(2)
	assert.False(t, ok)
	v, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, "three", v)
}

func TestLoaderComputesOnce(t *testing.T) {
	l := NewLoader(New[string, int](-1))

	var calls atomic.Int32
	release := make(chan struct{})
	load := func() (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Get("k", load)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	// Late arrivals hit the cache instead of the loader.
	v, err := l.Get("k", func() (int, error) { return 0, errors.New("unexpected load") })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.LessOrEqual(t, calls.Load(), int32(len(results)))
	assert.Equal(t, 1, l.Cache().Len())
}

func TestLoaderErrorNotCached(t *testing.T) {
	l := NewLoader(New[string, int](10))

	boom := errors.New("boom")
	_, err := l.Get("k", func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	v, err := l.Get("k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
