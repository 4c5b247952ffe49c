package format

import "math"

// Scale returns 10^precision.
func Scale(precision int) float64 {
	return math.Pow(10, float64(precision))
}

// Encode converts v to fixed-point integers at the given precision.
func Encode(dst []int64, v []float32, precision int) []int64 {
	scale := Scale(precision)
	dst = dst[:0]
	for _, x := range v {
		dst = append(dst, int64(math.Round(float64(x)*scale)))
	}
	return dst
}

// Decode reconstructs floats from fixed-point components into dst, which must
// be at least len(components) long. Normalized output divides by the scale;
// otherwise every component is multiplied by magnitude/scale. Elements of dst
// past len(components) are zeroed.
func Decode(dst []float32, components []int64, precision int, magnitude float64, normalized bool) {
	scale := Scale(precision)
	factor := 1 / scale
	if !normalized {
		factor = magnitude / scale
	}
	for i, c := range components {
		dst[i] = float32(float64(c) * factor)
	}
	clear(dst[len(components):])
}
