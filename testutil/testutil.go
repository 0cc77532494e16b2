package testutil

import (
	"math/rand"
	"sync"
)

// RNG is a seeded point generator. Tests that share one RNG across
// goroutines stay reproducible as long as the call order is fixed.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset rewinds the RNG so it replays the same points.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// UniformPoints generates num points with coordinates in [minVal, maxVal).
func (r *RNG) UniformPoints(num, dim int, minVal, maxVal float64) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, num*dim)
	points := make([][]float64, num)
	span := maxVal - minVal

	for i := range num {
		p := data[i*dim : (i+1)*dim : (i+1)*dim]
		for j := range p {
			p[j] = minVal + r.rand.Float64()*span
		}
		points[i] = p
	}

	return points
}

// Blobs generates perCenter points around every center with Gaussian noise of
// the given standard deviation. Points are emitted center by center.
func (r *RNG) Blobs(centers [][]float64, perCenter int, stddev float64) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	points := make([][]float64, 0, len(centers)*perCenter)
	for _, c := range centers {
		for range perCenter {
			p := make([]float64, len(c))
			for j := range c {
				p[j] = c[j] + r.rand.NormFloat64()*stddev
			}
			points = append(points, p)
		}
	}

	return points
}

// Shuffle permutes points in place.
func (r *RNG) Shuffle(points [][]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(len(points), func(i, j int) {
		points[i], points[j] = points[j], points[i]
	})
}
