// Package distance provides the vector arithmetic used by similarity
// queries. All functions are backed by vek32, which dispatches to SIMD
// kernels on amd64 and arm64 when available.
//
// # Usage
//
//	sim := distance.Cosine(a, b)
//	d := distance.L2(a, b)
//	distance.NormalizeL2InPlace(v)
package distance
