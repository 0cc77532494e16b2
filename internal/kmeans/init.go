package kmeans

import (
	"math"
	"math/rand"

	"github.com/hupe1980/kstep/distance"
	"gonum.org/v1/gonum/floats"
)

// DistinctIndices returns the index of the first occurrence of every distinct
// point, in input order.
func DistinctIndices(points [][]float64) []int {
	out := make([]int, 0, len(points))
	seen := make(map[string]struct{}, len(points))
	key := make([]byte, 0, 64)
	for i, p := range points {
		key = key[:0]
		for _, v := range p {
			key = appendFloat(key, v)
		}
		if _, ok := seen[string(key)]; ok {
			continue
		}
		seen[string(key)] = struct{}{}
		out = append(out, i)
	}
	return out
}

func appendFloat(dst []byte, v float64) []byte {
	// -0 and +0 are the same coordinate.
	if v == 0 {
		v = 0
	}
	bits := math.Float64bits(v)
	for s := 0; s < 64; s += 8 {
		dst = append(dst, byte(bits>>s))
	}
	return dst
}

// RandomInit picks k distinct points uniformly at random without replacement.
// distinct must come from DistinctIndices and hold at least k entries.
func RandomInit(points [][]float64, distinct []int, k int, rng *rand.Rand) [][]float64 {
	perm := rng.Perm(len(distinct))
	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		centroids[i] = clonePoint(points[distinct[perm[i]]])
	}
	return centroids
}

// FarthestInit implements farthest-first traversal. The first centroid is a
// distinct point drawn from rng; every following centroid is the unchosen
// distinct point farthest from its nearest chosen centroid, lowest index on
// ties.
func FarthestInit(points [][]float64, distinct []int, k int, rng *rand.Rand) [][]float64 {
	chosen := make([]bool, len(distinct))
	first := rng.Intn(len(distinct))
	chosen[first] = true

	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(points[distinct[first]]))

	minDist := nearestDistances(points, distinct, centroids[0])
	for len(centroids) < k {
		best := -1
		bestDist := -1.0
		for j, d := range minDist {
			if !chosen[j] && d > bestDist {
				bestDist = d
				best = j
			}
		}
		chosen[best] = true
		c := clonePoint(points[distinct[best]])
		centroids = append(centroids, c)
		updateNearest(points, distinct, c, minDist)
	}
	return centroids
}

// PlusPlusInit implements k-means++ seeding: every following centroid is drawn
// with probability proportional to its squared distance from the nearest
// chosen centroid. When every unchosen point is at distance zero (distances
// can underflow for points that differ only in tiny coordinates) the first
// unchosen point is taken.
func PlusPlusInit(points [][]float64, distinct []int, k int, rng *rand.Rand) [][]float64 {
	chosen := make([]bool, len(distinct))
	first := rng.Intn(len(distinct))
	chosen[first] = true

	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(points[distinct[first]]))

	weights := nearestDistances(points, distinct, centroids[0])
	weights[first] = 0
	for len(centroids) < k {
		next := -1
		if total := floats.Sum(weights); total > 0 {
			threshold := rng.Float64() * total
			var cumsum float64
			for j, w := range weights {
				if w == 0 {
					continue
				}
				cumsum += w
				next = j
				if cumsum > threshold {
					break
				}
			}
		}
		if next < 0 {
			for j := range chosen {
				if !chosen[j] {
					next = j
					break
				}
			}
		}
		chosen[next] = true
		c := clonePoint(points[distinct[next]])
		centroids = append(centroids, c)
		updateNearest(points, distinct, c, weights)
		weights[next] = 0
	}
	return centroids
}

func nearestDistances(points [][]float64, distinct []int, c []float64) []float64 {
	out := make([]float64, len(distinct))
	for j, idx := range distinct {
		out[j] = distance.SquaredL2(points[idx], c)
	}
	return out
}

func updateNearest(points [][]float64, distinct []int, c []float64, minDist []float64) {
	for j, idx := range distinct {
		if d := distance.SquaredL2(points[idx], c); d < minDist[j] {
			minDist[j] = d
		}
	}
}

func clonePoint(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
