package storage

import (
	"context"
	"math"
	"slices"
	"strings"
)

// FeaturizerCollisionRate is the hash collision probability an in-memory
// featurizer store is sized for.
const FeaturizerCollisionRate = 0.001

// FeaturizerDim returns the smallest dimensionality that keeps the collision
// probability of n hashed feature values under FeaturizerCollisionRate.
func FeaturizerDim(n int) int {
	if n < 1 {
		n = 1
	}
	nf := float64(n)
	x := (nf * nf) / (-2 * math.Log(1-FeaturizerCollisionRate))
	return max(int(math.Ceil(math.Log(x)/math.Log(100))), 2)
}

// probeMaxParams finds the largest bound-parameter count the engine accepts
// among 99, 999, 9999 and 99999, falling back to 1.
func probeMaxParams(ctx context.Context, q Querier) int {
	best := 0
	for _, n := range []int{99, 999, 9999, 99999} {
		args := make([]any, n)
		for i := range args {
			args[i] = i
		}
		var ok int
		if err := q.QueryRowContext(ctx, "SELECT 1 IN ("+placeholders(n)+")", args...).Scan(&ok); err == nil {
			best = max(best, n)
		}
	}
	return max(best, 1)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func batches[T any](items []T, size int) [][]T {
	return slices.Collect(slices.Chunk(items, max(size, 1)))
}
