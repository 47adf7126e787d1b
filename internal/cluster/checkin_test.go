package cluster

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/database/memory"
	"github.com/dandantas/cronlease/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySchedulers fails the first failures check-ins
type flakySchedulers struct {
	*memory.SchedulerStore
	failures int32
	calls    atomic.Int32
}

func (f *flakySchedulers) CheckIn(ctx context.Context) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("not primary")
	}
	return f.SchedulerStore.CheckIn(ctx)
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestCheckinWritesRecord(t *testing.T) {
	store := memory.New()
	clk := clock.NewManual(testStartMs)
	m := metrics.New(prometheus.NewRegistry())

	task := NewCheckinTask(store.Schedulers(clk, testCluster, "node-a", testLease), fastRetry(3), m)
	task.SetErrorHandler(func() { t.Fatal("error handler must not run") })

	task.Run(context.Background())

	records := store.SchedulerRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "node-a", records[0].InstanceID)
	assert.Equal(t, testCluster, records[0].Name)
	assert.Equal(t, testStartMs, records[0].LastCheckinTime)
	assert.Equal(t, testLease.Milliseconds(), records[0].CheckinInterval)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckinTotal.WithLabelValues("success")))

	clk.Advance(testInterval)
	task.Run(context.Background())

	records = store.SchedulerRecords()
	require.Len(t, records, 1)
	assert.Equal(t, testStartMs+testInterval.Milliseconds(), records[0].LastCheckinTime)
}

func TestCheckinRetriesTransientFailure(t *testing.T) {
	store := memory.New()
	clk := clock.NewManual(testStartMs)
	schedulers := &flakySchedulers{
		SchedulerStore: store.Schedulers(clk, testCluster, "node-a", testLease),
		failures:       2,
	}
	m := metrics.New(prometheus.NewRegistry())

	var fatal atomic.Bool
	task := NewCheckinTask(schedulers, fastRetry(3), m)
	task.SetErrorHandler(func() { fatal.Store(true) })

	task.Run(context.Background())

	assert.False(t, fatal.Load())
	assert.Equal(t, int32(3), schedulers.calls.Load())
	assert.Len(t, store.SchedulerRecords(), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CheckinTotal.WithLabelValues("retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckinTotal.WithLabelValues("success")))
}

func TestCheckinInvokesErrorHandlerAfterLastAttempt(t *testing.T) {
	store := memory.New()
	clk := clock.NewManual(testStartMs)
	schedulers := &flakySchedulers{
		SchedulerStore: store.Schedulers(clk, testCluster, "node-a", testLease),
		failures:       100,
	}
	m := metrics.New(prometheus.NewRegistry())

	var fatal atomic.Int32
	task := NewCheckinTask(schedulers, fastRetry(3), m)
	task.SetErrorHandler(func() { fatal.Add(1) })

	task.Run(context.Background())

	assert.Equal(t, int32(1), fatal.Load())
	assert.Equal(t, int32(3), schedulers.calls.Load())
	assert.Empty(t, store.SchedulerRecords())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckinTotal.WithLabelValues("fatal")))
}

func TestCheckinAbandonedWhenContextDone(t *testing.T) {
	store := memory.New()
	clk := clock.NewManual(testStartMs)
	store.Fail(memory.OpCheckIn, errors.New("socket closed"))

	var fatal atomic.Bool
	task := NewCheckinTask(store.Schedulers(clk, testCluster, "node-a", testLease), fastRetry(3), nil)
	task.SetErrorHandler(func() { fatal.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task.Run(ctx)

	assert.False(t, fatal.Load())
}

func TestCheckinTaskName(t *testing.T) {
	task := NewCheckinTask(memory.New().Schedulers(clock.System{}, testCluster, "a", testLease), RetryPolicy{}, nil)
	assert.Equal(t, "checkin", task.Name())
	assert.Equal(t, 1, task.retry.MaxAttempts)
}
