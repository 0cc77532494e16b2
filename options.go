package kstep

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hupe1980/kstep/internal/kmeans"
)

// DefaultMaxIterations is the iteration cap used unless WithMaxIterations is set.
const DefaultMaxIterations = kmeans.DefaultMaxIterations

// EmptyClusterPolicy decides where the centroid of a cluster without members goes.
type EmptyClusterPolicy int

const (
	// EmptyKeep leaves the centroid unchanged from the previous iteration.
	EmptyKeep EmptyClusterPolicy = iota

	// EmptyFarthest re-seeds the centroid on the point farthest from its own
	// assigned centroid (lowest point index on ties).
	EmptyFarthest
)

func (p EmptyClusterPolicy) String() string {
	switch p {
	case EmptyKeep:
		return "keep"
	case EmptyFarthest:
		return "farthest"
	default:
		return "unknown"
	}
}

// ParseEmptyClusterPolicy returns the policy named by s ("keep" or "farthest").
func ParseEmptyClusterPolicy(s string) (EmptyClusterPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return EmptyKeep, nil
	case "farthest":
		return EmptyFarthest, nil
	default:
		return EmptyKeep, fmt.Errorf("unknown empty cluster policy %q", s)
	}
}

type options struct {
	maxIterations    int
	tolerance        float64
	seed             *int64
	emptyPolicy      EmptyClusterPolicy
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures an Engine.
type Option func(*options)

// WithMaxIterations caps the number of iterations per run.
// Reaching the cap is not an error; Result.Converged reports false.
// Values < 1 fall back to DefaultMaxIterations.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = DefaultMaxIterations
		}
		o.maxIterations = n
	}
}

// WithTolerance stops a run once no centroid moved by more than tol in an
// iteration, even if some labels would still change. The default (0) only
// stops on stable assignments.
func WithTolerance(tol float64) Option {
	return func(o *options) {
		if tol < 0 {
			tol = 0
		}
		o.tolerance = tol
	}
}

// WithSeed fixes the random source used by the random, farthest and kmeans++
// init methods. Request.Seed overrides it per request.
//
// Without a seed every run draws a fresh one; it is reported in Result.Seed.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = &seed
	}
}

// WithEmptyClusterPolicy selects what happens to centroids of empty clusters.
func WithEmptyClusterPolicy(p EmptyClusterPolicy) Option {
	return func(o *options) {
		o.emptyPolicy = p
	}
}

// WithMetricsCollector configures a metrics collector for monitoring runs.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &kstep.BasicMetricsCollector{}
//	engine := kstep.New(kstep.WithMetricsCollector(metrics))
//	// ... run ...
//	stats := metrics.GetStats()
//	fmt.Printf("Runs: %d, Avg iterations: %.1f\n", stats.RunCount, stats.AvgIterations)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for runs.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := kstep.NewJSONLogger(slog.LevelInfo)
//	engine := kstep.New(kstep.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxIterations:    DefaultMaxIterations,
		emptyPolicy:      EmptyKeep,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
