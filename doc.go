// Package kstep provides a stepwise K-means clustering engine.
//
// kstep runs Lloyd's algorithm over a set of points and returns the final
// clustering together with an ordered trace of every intermediate state, so
// callers can step through the run or jump straight to convergence.
//
// # Quick Start
//
//	engine := kstep.New()
//	res, err := engine.Run(ctx, kstep.Request{
//	    Points:     []kstep.Point{{0, 0}, {0, 1}, {10, 0}, {10, 1}},
//	    NClusters:  2,
//	    InitMethod: kstep.InitManual,
//	    InitialCentroids: []kstep.Point{{0, 0}, {10, 0}},
//	})
//	for i, step := range res.Steps {
//	    fmt.Println(i, step.Centroids, step.Labels)
//	}
//
// # Initialization
//
//   - InitRandom: k distinct input points, uniformly without replacement
//   - InitManual: caller-supplied centroids, used verbatim
//   - InitFarthest: farthest-first traversal (deterministic for a fixed seed)
//   - InitKMeansPlusPlus: k-means++ seeding (deterministic for a fixed seed)
//
// # Steps
//
// Steps[i] is the state after iteration i+1: the labels produced by the
// assignment phase and the centroids produced by the update phase. The last
// step always equals the final result. Steps are deep copies and never change
// after they are recorded.
//
// # Concurrency
//
// An Engine holds only configuration. Run allocates all working buffers per
// call, so one Engine may serve any number of concurrent runs.
package kstep
