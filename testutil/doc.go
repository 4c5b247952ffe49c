// Package testutil provides helpers for magvec tests.
//
// This package is intended for use in tests only. It writes fixture store
// files, generates seeded random vectors and computes exact nearest
// neighbors to compare search results against.
//
//	rng := testutil.NewRNG(4711)
//	vecs := rng.GaussianVectors(100, 16)
//	path := testutil.WriteStore(t, testutil.Keys("k", 100), vecs)
//	want := testutil.ExactTopK(vecs, vecs[0], 10)
package testutil
