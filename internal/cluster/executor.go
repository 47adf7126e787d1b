package cluster

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TaskExecutor runs one ClusterTask immediately and then at a fixed period.
// Runs never overlap: a run that outlasts the period delays the next one.
type TaskExecutor struct {
	task       ClusterTask
	period     time.Duration
	instanceID string

	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// NewTaskExecutor creates an executor for task
func NewTaskExecutor(task ClusterTask, period time.Duration, instanceID string) *TaskExecutor {
	return &TaskExecutor{
		task:       task,
		period:     period,
		instanceID: instanceID,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the run loop. Calling Start more than once has no effect.
func (e *TaskExecutor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return
	}
	e.started = true

	slog.Info("Starting cluster task",
		"task", e.task.Name(),
		"instance_id", e.instanceID,
		"period_ms", e.period.Milliseconds(),
	)

	e.ticker = time.NewTicker(e.period)
	e.wg.Add(1)

	go e.run(ctx)
}

// Shutdown stops scheduling new runs and waits for the current one to finish.
// Safe to call more than once and before Start.
func (e *TaskExecutor) Shutdown() {
	e.stopOnce.Do(func() {
		slog.Info("Stopping cluster task", "task", e.task.Name(), "instance_id", e.instanceID)
		close(e.stopChan)
	})

	e.wg.Wait()

	e.mu.Lock()
	if e.ticker != nil {
		e.ticker.Stop()
	}
	e.mu.Unlock()
}

func (e *TaskExecutor) run(ctx context.Context) {
	defer e.wg.Done()

	// A run that started keeps its store writes even if ctx is cancelled
	// while it is in flight.
	taskCtx := context.WithoutCancel(ctx)

	e.runOnce(taskCtx)

	for {
		select {
		case <-e.ticker.C:
			select {
			case <-e.stopChan:
				return
			default:
			}
			e.runOnce(taskCtx)
		case <-e.stopChan:
			slog.Debug("Cluster task stopped", "task", e.task.Name(), "instance_id", e.instanceID)
			return
		case <-ctx.Done():
			slog.Debug("Cluster task context done", "task", e.task.Name(), "instance_id", e.instanceID)
			return
		}
	}
}

func (e *TaskExecutor) runOnce(ctx context.Context) {
	start := time.Now()
	e.task.Run(ctx)
	slog.Debug("Cluster task finished",
		"task", e.task.Name(),
		"instance_id", e.instanceID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
