package kmeans

import (
	"context"

	"github.com/hupe1980/kstep/distance"
	"gonum.org/v1/gonum/floats"
)

// DefaultMaxIterations bounds the Lloyd loop when Config.MaxIterations is unset.
const DefaultMaxIterations = 100

// EmptyPolicy decides what happens to a centroid whose cluster has no members.
type EmptyPolicy int

const (
	// EmptyKeep leaves the centroid where it was in the previous iteration.
	EmptyKeep EmptyPolicy = iota
	// EmptyFarthest moves the centroid onto the point that lies farthest from
	// its own assigned centroid.
	EmptyFarthest
)

// Config controls a Run.
type Config struct {
	// MaxIterations caps the number of iterations. Values < 1 use DefaultMaxIterations.
	MaxIterations int

	// Tolerance stops the loop once no centroid moved farther than it.
	// Zero disables the check; assignment stability always applies.
	Tolerance float64

	EmptyPolicy EmptyPolicy
}

// StepFunc observes the state after one completed iteration. centroids and
// labels are owned by Run and are overwritten by later iterations; copy them
// to retain them.
type StepFunc func(iteration int, centroids [][]float64, labels []int, changed int)

// Stats summarizes a finished Run.
type Stats struct {
	Iterations int
	Converged  bool
}

// Run performs Lloyd's algorithm starting from centroids, which are updated in
// place. onStep is called after every iteration (assign + update).
//
// The loop stops when re-assigning against the updated centroids changes no
// label, when every centroid moved by at most cfg.Tolerance, or when
// cfg.MaxIterations is reached. ctx is checked between iterations.
func Run(ctx context.Context, points [][]float64, centroids [][]float64, cfg Config, onStep StepFunc) (Stats, error) {
	maxIter := cfg.MaxIterations
	if maxIter < 1 {
		maxIter = DefaultMaxIterations
	}
	tol2 := cfg.Tolerance * cfg.Tolerance

	n := len(points)
	labels := make([]int, n)
	next := make([]int, n)
	Assign(points, centroids, labels)
	changed := n

	scratch := make([][]float64, len(centroids))
	for j := range scratch {
		scratch[j] = make([]float64, len(centroids[j]))
	}

	var stats Stats
	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		shift := Update(points, labels, centroids, scratch, cfg.EmptyPolicy)
		stats.Iterations = iter
		if onStep != nil {
			onStep(iter, centroids, labels, changed)
		}

		changed = Assign(points, centroids, next)
		if changed == 0 || (tol2 > 0 && shift <= tol2) {
			stats.Converged = true
			break
		}
		labels, next = next, labels
	}

	return stats, nil
}

// Assign writes the index of the nearest centroid for every point into labels
// and returns how many labels differ from their previous value.
func Assign(points [][]float64, centroids [][]float64, labels []int) int {
	changed := 0
	for i, p := range points {
		best, _ := distance.Nearest(p, centroids)
		if labels[i] != best {
			changed++
		}
		labels[i] = best
	}
	return changed
}

// Update recomputes every centroid as the running mean of its members and
// returns the largest squared distance any centroid moved. scratch must have
// the same shape as centroids; it is used as the accumulator and the results
// are copied back into centroids.
func Update(points [][]float64, labels []int, centroids [][]float64, scratch [][]float64, policy EmptyPolicy) float64 {
	counts := make([]int, len(centroids))
	for j := range scratch {
		for d := range scratch[j] {
			scratch[j][d] = 0
		}
	}

	for i, p := range points {
		j := labels[i]
		counts[j]++
		// mean += (p - mean) / count
		inv := 1 / float64(counts[j])
		floats.Scale(1-inv, scratch[j])
		floats.AddScaled(scratch[j], inv, p)
	}

	var empty []int
	for j, c := range counts {
		if c == 0 {
			copy(scratch[j], centroids[j])
			empty = append(empty, j)
		}
	}
	if len(empty) > 0 && policy == EmptyFarthest {
		reseedFarthest(points, labels, scratch, empty)
	}

	var maxShift float64
	for j := range centroids {
		if d := distance.SquaredL2(centroids[j], scratch[j]); d > maxShift {
			maxShift = d
		}
		copy(centroids[j], scratch[j])
	}
	return maxShift
}

// reseedFarthest moves each empty centroid, in index order, onto the point
// with the largest distance to its assigned centroid. A point is used at most
// once; ties resolve to the lowest point index.
func reseedFarthest(points [][]float64, labels []int, centroids [][]float64, empty []int) {
	taken := make(map[int]struct{}, len(empty))
	for _, j := range empty {
		best := -1
		bestDist := -1.0
		for i, p := range points {
			if _, ok := taken[i]; ok {
				continue
			}
			if d := distance.SquaredL2(p, centroids[labels[i]]); d > bestDist {
				bestDist = d
				best = i
			}
		}
		if best < 0 {
			return
		}
		taken[best] = struct{}{}
		copy(centroids[j], points[best])
	}
}

// Inertia returns the sum of squared distances of every point to its assigned centroid.
func Inertia(points [][]float64, centroids [][]float64, labels []int) float64 {
	var sum float64
	for i, p := range points {
		sum += distance.SquaredL2(p, centroids[labels[i]])
	}
	return sum
}
