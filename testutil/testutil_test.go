package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/magvec/internal/format"
	"github.com/hupe1980/magvec/internal/storage"
)

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))

	for _, vec := range v {
		var sum float32
		for _, val := range vec {
			sum += val * val
		}
		assert.InDelta(t, float32(1.0), sum, 1e-5)
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.GaussianVectors(1, 10)

	rng.Reset()
	v2 := rng.GaussianVectors(1, 10)

	assert.Equal(t, v1, v2)
}

func TestKeysDistinct(t *testing.T) {
	keys := Keys("w", 1000)
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		assert.False(t, seen[k], k)
		seen[k] = true
	}
}

func TestExactTopK(t *testing.T) {
	vecs := [][]float32{{1, 0}, {0, 1}, {1, 1}}

	got := ExactTopK(vecs, []float32{1, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 2, got[1].Index)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
}

func TestWriteStore(t *testing.T) {
	rng := NewRNG(1)
	vecs := rng.GaussianVectors(5, 4)
	path := WriteStore(t, Keys("k", 5), vecs)

	db, err := storage.Open(context.Background(), path, storage.Options{})
	require.NoError(t, err)
	defer db.Close()

	meta := db.Metadata()
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, 4, meta.Dim)
	assert.Equal(t, format.DefaultPrecision, meta.Precision)
}
