package kstep

import (
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/kstep/internal/kmeans"
)

// Point is an ordered tuple of coordinates. On the wire it is a JSON array,
// e.g. [x, y].
type Point []float64

// Clone returns a deep copy of p.
func (p Point) Clone() Point {
	if p == nil {
		return nil
	}
	out := make(Point, len(p))
	copy(out, p)
	return out
}

// InitMethod selects how the starting centroids are chosen.
type InitMethod string

const (
	InitRandom         InitMethod = "random"
	InitManual         InitMethod = "manual"
	InitFarthest       InitMethod = "farthest"
	InitKMeansPlusPlus InitMethod = "kmeans++"
)

// ParseInitMethod returns the InitMethod for name. Matching ignores case and
// surrounding whitespace.
func ParseInitMethod(name string) (InitMethod, error) {
	switch m := InitMethod(strings.ToLower(strings.TrimSpace(name))); m {
	case InitRandom, InitManual, InitFarthest, InitKMeansPlusPlus:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownInitMethod, name)
	}
}

func (m InitMethod) String() string { return string(m) }

// Seeded reports whether the method draws from the random source.
func (m InitMethod) Seeded() bool {
	return m == InitRandom || m == InitFarthest || m == InitKMeansPlusPlus
}

// Request is one clustering job.
type Request struct {
	Points     []Point    `json:"data"`
	NClusters  int        `json:"n_clusters"`
	InitMethod InitMethod `json:"init_method"`

	// InitialCentroids is required for InitManual and rejected otherwise.
	InitialCentroids []Point `json:"initial_centroids,omitempty"`

	// Seed fixes the random source for seeded init methods. It takes
	// precedence over WithSeed.
	Seed *int64 `json:"seed,omitempty"`
}

// Dimension returns the dimensionality of the first point, or 0 if there are none.
func (r *Request) Dimension() int {
	if len(r.Points) == 0 {
		return 0
	}
	return len(r.Points[0])
}

// Validate reports the first constraint req violates as a *ValidationError,
// or nil. Engine.Run performs the same checks; callers use Validate to
// reject a request before committing resources to it.
func (r *Request) Validate() error {
	_, _, err := r.validate()
	return err
}

// validate checks every request constraint and returns the normalized init
// method together with the indices of the distinct points (seeded methods only).
func (r *Request) validate() (InitMethod, []int, error) {
	if len(r.Points) == 0 {
		return "", nil, invalid("data", "at least one point is required")
	}
	dim := len(r.Points[0])
	if dim == 0 {
		return "", nil, invalid("data", "points must have at least one coordinate")
	}
	if err := checkPoints("data", r.Points, dim); err != nil {
		return "", nil, err
	}

	if r.NClusters < 1 {
		return "", nil, invalid("n_clusters", "must be at least 1, got %d", r.NClusters)
	}
	if r.NClusters > len(r.Points) {
		return "", nil, invalid("n_clusters", "must not exceed the number of points (%d), got %d", len(r.Points), r.NClusters)
	}

	method, err := ParseInitMethod(string(r.InitMethod))
	if err != nil {
		return "", nil, &ValidationError{Field: "init_method", Reason: err.Error(), cause: err}
	}

	if method == InitManual {
		if len(r.InitialCentroids) == 0 {
			return "", nil, invalid("initial_centroids", "required for manual initialization")
		}
		if len(r.InitialCentroids) != r.NClusters {
			return "", nil, invalid("initial_centroids", "expected %d centroids, got %d", r.NClusters, len(r.InitialCentroids))
		}
		if err := checkPoints("initial_centroids", r.InitialCentroids, dim); err != nil {
			return "", nil, err
		}
		return method, nil, nil
	}

	if len(r.InitialCentroids) > 0 {
		return "", nil, invalid("initial_centroids", "only allowed for manual initialization, got %q", method)
	}

	distinct := kmeans.DistinctIndices(toMatrix(r.Points))
	if r.NClusters > len(distinct) {
		return "", nil, invalid("n_clusters", "%s initialization needs %d distinct points, only %d available", method, r.NClusters, len(distinct))
	}
	return method, distinct, nil
}

func checkPoints(field string, points []Point, dim int) error {
	for i, p := range points {
		if len(p) != dim {
			return dimensionMismatch(field, i, dim, len(p))
		}
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return invalid(field, "point %d has a non-finite coordinate", i)
			}
		}
	}
	return nil
}

// toMatrix views points as [][]float64 without copying coordinates.
func toMatrix(points []Point) [][]float64 {
	out := make([][]float64, len(points))
	for i, p := range points {
		out[i] = p
	}
	return out
}
