package distance

import "math"

// SquaredL2 calculates the squared L2 (Euclidean) distance between two points.
// Assumes points are the same length (caller's responsibility).
func SquaredL2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Nearest returns the index of the centroid closest to p and its squared
// distance. Ties resolve to the lowest index. Returns (-1, +Inf) when
// centroids is empty.
func Nearest(p []float64, centroids [][]float64) (int, float64) {
	if len(centroids) == 0 {
		return -1, math.Inf(1)
	}

	best := 0
	bestDist := SquaredL2(p, centroids[0])
	for j := 1; j < len(centroids); j++ {
		if d := SquaredL2(p, centroids[j]); d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best, bestDist
}
