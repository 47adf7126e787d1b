package cluster

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// countingTask records runs and the maximum number of concurrent runs
type countingTask struct {
	runs      atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	sleep     time.Duration
	ctxErrs   atomic.Int32
}

func (c *countingTask) Name() string { return "counting" }

func (c *countingTask) Run(ctx context.Context) {
	n := c.active.Add(1)
	for {
		m := c.maxActive.Load()
		if n <= m || c.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(c.sleep)
	if ctx.Err() != nil {
		c.ctxErrs.Add(1)
	}
	c.active.Add(-1)
	c.runs.Add(1)
}

func TestTaskExecutorRunsImmediatelyAndPeriodically(t *testing.T) {
	first := &countingTask{}
	once := NewTaskExecutor(first, time.Hour, "node-a")
	once.Start(context.Background())
	defer once.Shutdown()

	assert.Eventually(t, func() bool { return first.runs.Load() == 1 }, time.Second, time.Millisecond)

	periodic := &countingTask{}
	executor := NewTaskExecutor(periodic, 10*time.Millisecond, "node-a")
	executor.Start(context.Background())
	defer executor.Shutdown()

	assert.Eventually(t, func() bool { return periodic.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestTaskExecutorRunsDoNotOverlap(t *testing.T) {
	task := &countingTask{sleep: 30 * time.Millisecond}
	executor := NewTaskExecutor(task, 5*time.Millisecond, "node-a")

	executor.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	executor.Shutdown()

	assert.Equal(t, int32(1), task.maxActive.Load())
	assert.GreaterOrEqual(t, task.runs.Load(), int32(2))
}

func TestTaskExecutorShutdownWaitsForInFlightRun(t *testing.T) {
	task := &countingTask{sleep: 50 * time.Millisecond}
	executor := NewTaskExecutor(task, time.Hour, "node-a")

	ctx, cancel := context.WithCancel(context.Background())
	executor.Start(ctx)
	assert.Eventually(t, func() bool { return task.active.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	executor.Shutdown()

	assert.Equal(t, int32(1), task.runs.Load())
	assert.Equal(t, int32(0), task.active.Load())
	assert.Equal(t, int32(0), task.ctxErrs.Load(), "in-flight run keeps a live context")
}

func TestTaskExecutorStopsAfterShutdown(t *testing.T) {
	task := &countingTask{}
	executor := NewTaskExecutor(task, 5*time.Millisecond, "node-a")

	executor.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	executor.Shutdown()

	runs := task.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runs, task.runs.Load())
}

func TestTaskExecutorShutdownIsIdempotent(t *testing.T) {
	executor := NewTaskExecutor(&countingTask{}, time.Hour, "node-a")

	assert.NotPanics(t, func() {
		executor.Shutdown()
		executor.Start(context.Background())
		executor.Shutdown()
		executor.Shutdown()
	})
}

func TestTaskExecutorsAreIndependent(t *testing.T) {
	slow := &countingTask{sleep: 300 * time.Millisecond}
	fast := &countingTask{}

	slowExec := NewTaskExecutor(slow, time.Hour, "node-a")
	fastExec := NewTaskExecutor(fast, 5*time.Millisecond, "node-a")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); slowExec.Start(context.Background()) }()
	go func() { defer wg.Done(); fastExec.Start(context.Background()) }()
	wg.Wait()

	assert.Eventually(t, func() bool { return fast.runs.Load() >= 3 }, 250*time.Millisecond, time.Millisecond)
	assert.Equal(t, int32(0), slow.runs.Load(), "slow task still in its first run")

	slowExec.Shutdown()
	fastExec.Shutdown()
}
