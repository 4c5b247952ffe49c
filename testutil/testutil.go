package testutil

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/magvec/distance"
	"github.com/hupe1980/magvec/writer"
)

// Neighbor is one exact search result.
type Neighbor struct {
	Index      int
	Similarity float32
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// GaussianVectors generates vectors with components drawn from a standard
// normal distribution. They are not normalized, so stored magnitudes differ
// per row.
func (r *RNG) GaussianVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)
	for i := range num {
		vec := data[i*dim : (i+1)*dim]
		for j := range vec {
			vec[j] = float32(r.rand.NormFloat64())
		}
		vectors[i] = vec
	}
	return vectors
}

// UnitVectors generates L2-normalized random vectors.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	vectors := r.GaussianVectors(num, dim)
	for _, v := range vectors {
		if !distance.NormalizeL2InPlace(v) {
			v[0] = 1
		}
	}
	return vectors
}

// Keys returns n distinct keys with the given prefix.
func Keys(prefix string, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = prefix + itoa(i)
	}
	return keys
}

func itoa(i int) string {
	const digits = "abcdefghijklmnopqrstuvwxyz"
	if i == 0 {
		return "a"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{digits[i%len(digits)]}, b...)
		i /= len(digits)
	}
	return string(b)
}

// WriteStore writes keys and vectors to a new store file in a temporary
// directory and returns its path.
func WriteStore(t testing.TB, keys []string, vectors [][]float32, opts ...writer.Option) string {
	t.Helper()
	require.Equal(t, len(keys), len(vectors))
	require.NotEmpty(t, vectors)

	path := filepath.Join(t.TempDir(), "vectors.magvec")
	ctx := context.Background()

	w, err := writer.New(ctx, path, len(vectors[0]), opts...)
	require.NoError(t, err)
	for i, k := range keys {
		require.NoError(t, w.Add(ctx, k, vectors[i]))
	}
	require.NoError(t, w.Close(ctx))
	return path
}

// ExactTopK returns the k rows most cosine-similar to query, best first.
// Ties are broken by the lower index.
func ExactTopK(vectors [][]float32, query []float32, k int) []Neighbor {
	out := make([]Neighbor, len(vectors))
	for i, v := range vectors {
		out[i] = Neighbor{Index: i, Similarity: distance.Cosine(query, v)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// MaxAbsDiff returns the largest component-wise difference of a and b.
func MaxAbsDiff(a, b []float32) float64 {
	var m float64
	for i := range a {
		m = math.Max(m, math.Abs(float64(a[i])-float64(b[i])))
	}
	return m
}
