package kstep

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus
// (see server.Metrics).
type MetricsCollector interface {
	// RecordRun is called after every run that passed validation.
	// iterations is the number of recorded steps, converged is false when the
	// iteration cap was hit, err is non-nil if the run was abandoned.
	RecordRun(method InitMethod, iterations int, converged bool, duration time.Duration, err error)

	// RecordRejected is called when a request fails validation.
	RecordRejected(err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRun(InitMethod, int, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordRejected(error)                                  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RunCount        atomic.Int64
	RunErrors       atomic.Int64
	RunTotalNanos   atomic.Int64
	IterationsTotal atomic.Int64
	Converged       atomic.Int64
	CapReached      atomic.Int64
	Rejected        atomic.Int64
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(_ InitMethod, iterations int, converged bool, duration time.Duration, err error) {
	b.RunCount.Add(1)
	b.RunTotalNanos.Add(duration.Nanoseconds())
	b.IterationsTotal.Add(int64(iterations))
	switch {
	case err != nil:
		b.RunErrors.Add(1)
	case converged:
		b.Converged.Add(1)
	default:
		b.CapReached.Add(1)
	}
}

// RecordRejected implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRejected(error) {
	b.Rejected.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	runs := b.RunCount.Load()
	stats := BasicMetricsStats{
		RunCount:        runs,
		RunErrors:       b.RunErrors.Load(),
		IterationsTotal: b.IterationsTotal.Load(),
		Converged:       b.Converged.Load(),
		CapReached:      b.CapReached.Load(),
		Rejected:        b.Rejected.Load(),
	}
	if runs > 0 {
		stats.RunAvgNanos = b.RunTotalNanos.Load() / runs
		stats.AvgIterations = float64(stats.IterationsTotal) / float64(runs)
	}
	return stats
}

// BasicMetricsStats is a point-in-time snapshot of BasicMetricsCollector.
type BasicMetricsStats struct {
	RunCount        int64
	RunErrors       int64
	RunAvgNanos     int64
	IterationsTotal int64
	AvgIterations   float64
	Converged       int64
	CapReached      int64
	Rejected        int64
}
