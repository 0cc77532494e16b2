// Package testutil provides testing utilities for kstep.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe RNG for generating point sets.
//
// # Random Point Generation
//
//	rng := testutil.NewRNG(seed)
//	pts := rng.UniformPoints(100, 2, 0, 10)        // uniform in [0, 10)
//	pts = rng.Blobs([][]float64{{0, 0}, {10, 10}}, 50, 0.5)
package testutil
