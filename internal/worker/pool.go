package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Submit when no worker can take the job
var ErrQueueFull = errors.New("worker queue is full")

// ErrPoolStopped is returned by Submit after Stop
var ErrPoolStopped = errors.New("worker pool is stopped")

// ExecutorFunc runs a job
type ExecutorFunc func(ctx context.Context, job Job) error

// WorkerPool manages a pool of worker goroutines for concurrent job execution
type WorkerPool struct {
	workers    int
	jobs       chan Job
	executorFn ExecutorFunc
	onResult   func(Result)
	wg         sync.WaitGroup
	mu         sync.RWMutex
	stopped    bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int, jobQueueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if jobQueueSize < 0 {
		jobQueueSize = 0
	}

	return &WorkerPool{
		workers: workers,
		jobs:    make(chan Job, jobQueueSize),
	}
}

// SetExecutor sets the executor function that will process jobs
func (wp *WorkerPool) SetExecutor(fn ExecutorFunc) {
	wp.executorFn = fn
}

// SetResultHandler sets a function called after every job
func (wp *WorkerPool) SetResultHandler(fn func(Result)) {
	wp.onResult = fn
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	slog.Info("Starting worker pool", "workers", wp.workers)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop stops accepting jobs and waits for queued and running jobs to finish
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	slog.Info("Stopping worker pool")

	wp.wg.Wait()

	slog.Info("Worker pool stopped")
}

// Submit queues a job without blocking. Returns ErrQueueFull when the queue
// has no room and ErrPoolStopped after Stop.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.jobs <- job:
		slog.Debug("Job submitted to worker pool",
			"fire_id", job.FireID,
			"trigger", job.Trigger.Key().String(),
		)
		return nil
	default:
		return ErrQueueFull
	}
}

// worker is the worker goroutine that processes jobs
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	slog.Debug("Worker started", "worker_id", id)

	for job := range wp.jobs {
		slog.Debug("Worker processing job",
			"worker_id", id,
			"fire_id", job.FireID,
			"trigger", job.Trigger.Key().String(),
		)

		ctx := job.Context
		if ctx == nil {
			ctx = context.Background()
		}

		start := time.Now()
		err := wp.executorFn(ctx, job)

		if wp.onResult != nil {
			wp.onResult(Result{
				FireID:     job.FireID,
				TriggerKey: job.Trigger.Key(),
				Duration:   time.Since(start),
				Error:      err,
			})
		}
	}

	slog.Debug("Worker stopped", "worker_id", id)
}

// GetJobQueueLength returns the current number of jobs in the queue
func (wp *WorkerPool) GetJobQueueLength() int {
	return len(wp.jobs)
}
