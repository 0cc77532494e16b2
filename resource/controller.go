// Package resource provides admission control for clustering runs: a bound
// on concurrent runs, a budget for the memory held by step traces and a
// request rate limit.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var (
	// ErrExceedsBudget is returned by Admit when a single run needs more trace
	// memory than the whole budget. Retrying cannot help.
	ErrExceedsBudget = errors.New("run exceeds the trace memory budget")

	// ErrMemoryBudget is returned by Admit when the trace budget cannot hold the
	// run right now.
	ErrMemoryBudget = errors.New("trace memory budget exhausted")

	// ErrNoRunSlot is returned by Admit when no run slot freed up before ctx was done.
	ErrNoRunSlot = errors.New("no run slot available")
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes bounds the trace memory of all admitted runs together.
	// If 0, usage is only tracked.
	MemoryLimitBytes int64

	// MaxConcurrentRuns is the maximum number of runs executing at once.
	// If 0, defaults to 1.
	MaxConcurrentRuns int64

	// RequestsPerSecond is the sustained request admission rate.
	// If 0, unlimited.
	RequestsPerSecond float64

	// Burst is the number of requests admitted at once above the sustained rate.
	// If 0, defaults to 1 when RequestsPerSecond is set.
	Burst int
}

// Controller admits clustering runs. The zero value is not usable; a nil
// *Controller admits everything.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	runSem  *semaphore.Weighted
	running atomic.Int64

	limiter *rate.Limiter // nil if unlimited
}

// NewController creates a controller enforcing cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}
	if cfg.RequestsPerSecond > 0 && cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	c := &Controller{
		cfg:    cfg,
		runSem: semaphore.NewWeighted(cfg.MaxConcurrentRuns),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// Allow reports whether a request may be admitted now under the rate limit.
// It never waits.
func (c *Controller) Allow() bool {
	if c == nil || c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// Cost is the shape of a clustering run, used to size its trace.
type Cost struct {
	Points        int
	Clusters      int
	Dimension     int
	MaxIterations int
}

// TraceBytes returns an upper bound for the memory a run holds: one centroid
// matrix and one label slice per recorded step plus the working buffers.
func (c Cost) TraceBytes() int64 {
	const (
		wordSize    = 8
		sliceHeader = 24
	)
	n, k, dim := int64(c.Points), int64(c.Clusters), int64(c.Dimension)
	matrix := k * (dim*wordSize + sliceHeader)
	perStep := matrix + n*wordSize + 2*sliceHeader
	working := 2*n*wordSize + 2*matrix
	return int64(max(c.MaxIterations, 1)+1)*perStep + working
}

// Ticket holds the resources of one admitted run until Release.
type Ticket struct {
	c     *Controller
	bytes int64
	once  sync.Once
}

// Bytes returns the trace memory reserved for the run.
func (t *Ticket) Bytes() int64 { return t.bytes }

// Release returns the run slot and the reserved memory. It is safe to call
// more than once.
func (t *Ticket) Release() {
	if t == nil || t.c == nil {
		return
	}
	t.once.Do(func() {
		t.c.running.Add(-1)
		t.c.runSem.Release(1)
		t.c.releaseMemory(t.bytes)
	})
}

// Admit reserves trace memory for cost and then waits for a run slot.
// A run larger than the whole budget fails with ErrExceedsBudget. The memory
// check never waits: a run that does not fit now fails with ErrMemoryBudget.
// Waiting for a slot ends with ErrNoRunSlot when ctx is done.
func (c *Controller) Admit(ctx context.Context, cost Cost) (*Ticket, error) {
	if c == nil {
		return &Ticket{}, nil
	}

	bytes := cost.TraceBytes()
	if limit := c.cfg.MemoryLimitBytes; limit > 0 && bytes > limit {
		return nil, fmt.Errorf("%w: run needs %d bytes, budget is %d", ErrExceedsBudget, bytes, limit)
	}
	if !c.tryReserveMemory(bytes) {
		return nil, fmt.Errorf("%w: run needs %d bytes, %d of %d in use",
			ErrMemoryBudget, bytes, c.MemoryUsage(), c.cfg.MemoryLimitBytes)
	}
	if err := c.runSem.Acquire(ctx, 1); err != nil {
		c.releaseMemory(bytes)
		return nil, fmt.Errorf("%w: %w", ErrNoRunSlot, err)
	}
	c.running.Add(1)
	return &Ticket{c: c, bytes: bytes}, nil
}

// MemoryUsage returns the trace memory currently reserved, in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// Running returns the number of admitted runs not yet released.
func (c *Controller) Running() int64 {
	if c == nil {
		return 0
	}
	return c.running.Load()
}

func (c *Controller) tryReserveMemory(bytes int64) bool {
	if bytes <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.memUsed.Add(bytes)
	return true
}

func (c *Controller) releaseMemory(bytes int64) {
	if bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}
