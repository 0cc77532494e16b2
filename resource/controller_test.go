package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostTraceBytes(t *testing.T) {
	small := Cost{Points: 10, Clusters: 2, Dimension: 2, MaxIterations: 100}
	assert.Positive(t, small.TraceBytes())

	more := small
	more.Points = 1000
	assert.Greater(t, more.TraceBytes(), small.TraceBytes())

	more = small
	more.MaxIterations = 10
	assert.Less(t, more.TraceBytes(), small.TraceBytes())

	// Unset caps still account for one step.
	assert.Equal(t, Cost{Points: 10, Clusters: 2, Dimension: 2, MaxIterations: 1}.TraceBytes(),
		Cost{Points: 10, Clusters: 2, Dimension: 2}.TraceBytes())
}

func TestController_Admit(t *testing.T) {
	cost := Cost{Points: 4, Clusters: 2, Dimension: 2, MaxIterations: 3}
	c := NewController(Config{MemoryLimitBytes: 2*cost.TraceBytes() + 1, MaxConcurrentRuns: 2})

	t1, err := c.Admit(context.Background(), cost)
	require.NoError(t, err)
	t2, err := c.Admit(context.Background(), cost)
	require.NoError(t, err)

	assert.Equal(t, 2*cost.TraceBytes(), c.MemoryUsage())
	assert.Equal(t, int64(2), c.Running())

	_, err = c.Admit(context.Background(), cost)
	assert.ErrorIs(t, err, ErrMemoryBudget)
	assert.Equal(t, 2*cost.TraceBytes(), c.MemoryUsage())

	t1.Release()
	t1.Release()
	assert.Equal(t, cost.TraceBytes(), c.MemoryUsage())
	assert.Equal(t, int64(1), c.Running())

	t2.Release()
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.Running())
}

func TestController_AdmitWaitsForSlot(t *testing.T) {
	c := NewController(Config{MaxConcurrentRuns: 1})
	cost := Cost{Points: 1, Clusters: 1, Dimension: 1, MaxIterations: 1}

	held, err := c.Admit(context.Background(), cost)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Admit(ctx, cost)
	assert.ErrorIs(t, err, ErrNoRunSlot)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, held.Bytes(), c.MemoryUsage())

	done := make(chan error, 1)
	go func() {
		tk, err := c.Admit(context.Background(), cost)
		if err == nil {
			tk.Release()
		}
		done <- err
	}()

	held.Release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiting run was not admitted")
	}
	assert.Zero(t, c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, int64(1), c.Config().MaxConcurrentRuns)

	tk, err := c.Admit(context.Background(), Cost{Points: 1 << 20, Clusters: 64, Dimension: 128, MaxIterations: 100})
	require.NoError(t, err)
	assert.Equal(t, tk.Bytes(), c.MemoryUsage())
	tk.Release()
	assert.Zero(t, c.MemoryUsage())
}

func TestController_NilAdmitsEverything(t *testing.T) {
	var c *Controller
	assert.True(t, c.Allow())

	tk, err := c.Admit(context.Background(), Cost{Points: 1, Clusters: 1, Dimension: 1})
	require.NoError(t, err)
	tk.Release()

	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.Running())
}

func TestController_Allow(t *testing.T) {
	c := NewController(Config{RequestsPerSecond: 0.001})
	assert.Equal(t, 1, c.Config().Burst)
	assert.True(t, c.Allow())
	assert.False(t, c.Allow())

	unlimited := NewController(Config{})
	for range 100 {
		assert.True(t, unlimited.Allow())
	}
}

func TestController_AdmitLargerThanBudget(t *testing.T) {
	cost := Cost{Points: 100, Clusters: 4, Dimension: 2, MaxIterations: 100}
	c := NewController(Config{MemoryLimitBytes: cost.TraceBytes() - 1, MaxConcurrentRuns: 4})

	_, err := c.Admit(context.Background(), cost)
	assert.ErrorIs(t, err, ErrExceedsBudget)
	assert.NotErrorIs(t, err, ErrMemoryBudget)
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.Running())
}
