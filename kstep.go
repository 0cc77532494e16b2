package kstep

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/hupe1980/kstep/internal/kmeans"
)

// Engine runs stepwise K-means clustering.
//
// An Engine is immutable after New and safe for concurrent use; every Run
// allocates and owns its own centroid and label buffers.
type Engine struct {
	opts options
}

// New creates an Engine configured by opts.
func New(optFns ...Option) *Engine {
	return &Engine{opts: applyOptions(optFns)}
}

// MaxIterations returns the iteration cap applied to every run.
func (e *Engine) MaxIterations() int { return e.opts.maxIterations }

// Run validates req, initializes centroids and iterates Lloyd's algorithm
// until the assignment is stable or the iteration cap is reached.
//
// Invalid requests fail with a *ValidationError (matching ErrValidation)
// before any iteration runs. The only other error is ctx's, when ctx is done
// between iterations; no partial result is returned in either case.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	method, distinct, err := req.validate()
	if err != nil {
		e.opts.logger.LogRejected(ctx, err)
		e.opts.metricsCollector.RecordRejected(err)
		return nil, err
	}

	logger := e.opts.logger.WithRun(method, req.NClusters, req.Dimension(), len(req.Points))

	// The engine only reads the caller's points.
	points := toMatrix(req.Points)

	res := &Result{}
	var centroids [][]float64
	if method == InitManual {
		centroids = make([][]float64, len(req.InitialCentroids))
		for j, c := range req.InitialCentroids {
			centroids[j] = c.Clone()
		}
	} else {
		res.Seed = e.seedFor(req)
		rng := rand.New(rand.NewSource(res.Seed))
		switch method {
		case InitFarthest:
			centroids = kmeans.FarthestInit(points, distinct, req.NClusters, rng)
		case InitKMeansPlusPlus:
			centroids = kmeans.PlusPlusInit(points, distinct, req.NClusters, rng)
		default:
			centroids = kmeans.RandomInit(points, distinct, req.NClusters, rng)
		}
	}

	cfg := kmeans.Config{
		MaxIterations: e.opts.maxIterations,
		Tolerance:     e.opts.tolerance,
		EmptyPolicy:   kmeans.EmptyPolicy(e.opts.emptyPolicy),
	}
	stats, err := kmeans.Run(ctx, points, centroids, cfg, func(iter int, c [][]float64, labels []int, changed int) {
		res.Steps = append(res.Steps, newStep(c, labels))
		logger.LogStep(ctx, iter, changed)
	})

	e.opts.metricsCollector.RecordRun(method, stats.Iterations, stats.Converged, time.Since(start), err)
	logger.LogRun(ctx, stats.Iterations, stats.Converged, err)
	if err != nil {
		return nil, fmt.Errorf("clustering abandoned after %d iterations: %w", stats.Iterations, err)
	}

	final := res.Steps[len(res.Steps)-1].Clone()
	res.Centroids = final.Centroids
	res.Labels = final.Labels
	res.Converged = stats.Converged
	res.Inertia = kmeans.Inertia(points, toMatrix(res.Centroids), res.Labels)
	return res, nil
}

func (e *Engine) seedFor(req Request) int64 {
	switch {
	case req.Seed != nil:
		return *req.Seed
	case e.opts.seed != nil:
		return *e.opts.seed
	default:
		return time.Now().UnixNano()
	}
}
