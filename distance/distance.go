package distance

import (
	"math"
	"slices"

	"github.com/viterin/vek/vek32"
)

// Dot calculates the dot product of two vectors of equal length.
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Dot(a, b)
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return vek32.Norm(v)
}

// L2 returns the Euclidean distance between a and b.
func L2(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Distance(a, b)
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero norm.
func Cosine(a, b []float32) float32 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	n := Norm(v)
	if n == 0 || math.IsNaN(float64(n)) {
		return false
	}
	vek32.DivNumber_Inplace(v, n)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// SumInto adds every vector in vs to dst.
func SumInto(dst []float32, vs [][]float32) {
	for _, v := range vs {
		vek32.Add_Inplace(dst, v)
	}
}

// MeanInto overwrites dst with the element-wise mean of vs.
func MeanInto(dst []float32, vs [][]float32) {
	clear(dst)
	if len(vs) == 0 {
		return
	}
	SumInto(dst, vs)
	vek32.DivNumber_Inplace(dst, float32(len(vs)))
}

// Combine returns (sum(pos) - sum(neg)) / (len(pos)+len(neg)), normalized.
// A single positive vector with no negatives is returned normalized as is.
func Combine(dim int, pos, neg [][]float32) []float32 {
	out := make([]float32, dim)
	if len(pos) == 1 && len(neg) == 0 {
		copy(out, pos[0])
		NormalizeL2InPlace(out)
		return out
	}
	SumInto(out, pos)
	for _, v := range neg {
		vek32.Sub_Inplace(out, v)
	}
	if n := len(pos) + len(neg); n > 0 {
		vek32.DivNumber_Inplace(out, float32(n))
	}
	NormalizeL2InPlace(out)
	return out
}

// CosMulEpsilon keeps the 3CosMul denominator away from zero.
const CosMulEpsilon = 1e-6

// CosMul scores a candidate from its dot products with the positive and
// negative query vectors, mapping each into [0, 1] first.
func CosMul(posDots, negDots []float32) float32 {
	num := float32(1)
	for _, d := range posDots {
		num *= (1 + d) / 2
	}
	den := float32(1)
	for _, d := range negDots {
		den *= (1 + d) / 2
	}
	return num / (den + CosMulEpsilon)
}
