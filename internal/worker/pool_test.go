package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dandantas/cronlease/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(id string) Job {
	return Job{
		FireID:  id,
		Trigger: model.Trigger{KeyGroup: "g", KeyName: id},
	}
}

func TestWorkerPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(3, 10)

	var ran atomic.Int32
	pool.SetExecutor(func(ctx context.Context, job Job) error {
		ran.Add(1)
		return nil
	})

	var mu sync.Mutex
	var results []Result
	pool.SetResultHandler(func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	pool.Start()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, pool.Submit(testJob(id)))
	}
	pool.Stop()

	assert.Equal(t, int32(4), ran.Load())
	assert.Len(t, results, 4)
}

func TestWorkerPoolReportsErrors(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.SetExecutor(func(ctx context.Context, job Job) error {
		return errors.New("job failed")
	})

	done := make(chan Result, 1)
	pool.SetResultHandler(func(r Result) { done <- r })

	pool.Start()
	defer pool.Stop()
	require.NoError(t, pool.Submit(testJob("a")))

	select {
	case r := <-done:
		assert.EqualError(t, r.Error, "job failed")
		assert.Equal(t, "a", r.FireID)
		assert.Equal(t, model.NewKey("g", "a"), r.TriggerKey)
	case <-time.After(time.Second):
		t.Fatal("no result")
	}
}

func TestWorkerPoolSubmitWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool.SetExecutor(func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return nil
	})
	pool.Start()

	require.NoError(t, pool.Submit(testJob("running")))
	<-started
	require.NoError(t, pool.Submit(testJob("queued")))

	assert.ErrorIs(t, pool.Submit(testJob("rejected")), ErrQueueFull)
	assert.Equal(t, 1, pool.GetJobQueueLength())

	close(release)
	pool.Stop()
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.SetExecutor(func(ctx context.Context, job Job) error { return nil })
	pool.Start()
	pool.Stop()

	assert.ErrorIs(t, pool.Submit(testJob("late")), ErrPoolStopped)
	assert.NotPanics(t, pool.Stop)
}
