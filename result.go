package kstep

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// Step is the state after one completed iteration (assign + update).
type Step struct {
	Centroids []Point `json:"centroids"`
	Labels    []int   `json:"labels"`
}

func newStep(centroids [][]float64, labels []int) Step {
	s := Step{
		Centroids: make([]Point, len(centroids)),
		Labels:    slices.Clone(labels),
	}
	for j, c := range centroids {
		s.Centroids[j] = Point(c).Clone()
	}
	return s
}

// Clone returns a deep copy of s.
func (s Step) Clone() Step {
	out := Step{
		Centroids: make([]Point, len(s.Centroids)),
		Labels:    slices.Clone(s.Labels),
	}
	for j, c := range s.Centroids {
		out.Centroids[j] = c.Clone()
	}
	return out
}

// Result is the outcome of a clustering run.
//
// Centroids and Labels equal the last entry of Steps but do not share memory
// with it.
type Result struct {
	Centroids []Point `json:"centroids"`
	Labels    []int   `json:"labels"`
	Steps     []Step  `json:"steps"`

	// Converged is false when the run stopped at the iteration cap.
	Converged bool `json:"-"`

	// Inertia is the sum of squared distances of every point to its final centroid.
	Inertia float64 `json:"-"`

	// Seed is the seed used by a seeded init method. Replaying the request
	// with it reproduces Steps.
	Seed int64 `json:"-"`
}

// Iterations returns the number of completed iterations.
func (r *Result) Iterations() int { return len(r.Steps) }

// Members returns the indices of the points assigned to cluster at the given
// step. Out-of-range arguments yield an empty bitmap.
func (r *Result) Members(step, cluster int) *roaring.Bitmap {
	rb := roaring.New()
	if step < 0 || step >= len(r.Steps) {
		return rb
	}
	for i, l := range r.Steps[step].Labels {
		if l == cluster {
			rb.Add(uint32(i))
		}
	}
	return rb
}

// Changed returns the indices of the points whose label at step differs from
// the previous step. Every point counts as changed at step 0.
func (r *Result) Changed(step int) *roaring.Bitmap {
	rb := roaring.New()
	if step < 0 || step >= len(r.Steps) {
		return rb
	}
	labels := r.Steps[step].Labels
	if step == 0 {
		rb.AddRange(0, uint64(len(labels)))
		return rb
	}
	prev := r.Steps[step-1].Labels
	for i, l := range labels {
		if prev[i] != l {
			rb.Add(uint32(i))
		}
	}
	return rb
}

// Sizes returns the number of points in each cluster of the final result.
func (r *Result) Sizes() []int {
	sizes := make([]int, len(r.Centroids))
	for _, l := range r.Labels {
		sizes[l]++
	}
	return sizes
}
