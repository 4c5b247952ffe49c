package oov

import (
	"math/rand/v2"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/magvec/internal/format"
)

// The generator is shared and reseeded for every draw, so draws are
// serialized by one lock.
var (
	rngMu  sync.Mutex
	rngSrc = rand.NewPCG(0, 0)
	rng    = rand.New(rngSrc)
)

// Seed derives the generator seed for val, prefixed by namespace when set.
func Seed(namespace, val string) uint64 {
	if namespace != "" {
		return xxhash.Sum64String(namespace + format.RareChar + val)
	}
	return xxhash.Sum64String(val)
}

// uniformInto adds a uniform [-1, 1) vector drawn from seed to acc.
func uniformInto(acc []float64, seed uint64) {
	rngMu.Lock()
	defer rngMu.Unlock()

	rngSrc.Seed(seed, seed^0x9e3779b97f4a7c15)
	for i := range acc {
		acc[i] += rng.Float64()*2 - 1
	}
}
