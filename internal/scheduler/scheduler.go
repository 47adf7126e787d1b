package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/config"
	"github.com/dandantas/cronlease/internal/lock"
	"github.com/dandantas/cronlease/internal/metrics"
	"github.com/dandantas/cronlease/internal/model"
	"github.com/dandantas/cronlease/internal/worker"
	"github.com/google/uuid"
)

var (
	errJobBusy     = errors.New("job is running on another instance")
	errLockLost    = errors.New("trigger lock lost before execution")
	errJobNotFound = errors.New("no job registered")
)

// JobFunc is the work run when a trigger fires
type JobFunc func(ctx context.Context, job worker.Job) error

// TriggerStore is the trigger catalog the scheduler fires from
type TriggerStore interface {
	FindDue(ctx context.Context, now time.Time) ([]model.Trigger, error)
	Get(ctx context.Context, key model.Key) (*model.Trigger, error)
	UpdateFireTimes(ctx context.Context, key model.Key, previous, next time.Time) error
}

// Scheduler fires due triggers under cluster-wide locks
type Scheduler struct {
	cfg      *config.Config
	clock    clock.Clock
	triggers TriggerStore
	locks    *lock.Manager
	pool     *worker.WorkerPool
	metrics  *metrics.Metrics

	jobsMu sync.RWMutex
	jobs   map[model.Key]JobFunc

	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(
	cfg *config.Config,
	clk clock.Clock,
	triggers TriggerStore,
	locks *lock.Manager,
	m *metrics.Metrics,
) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		clock:    clk,
		triggers: triggers,
		locks:    locks,
		pool:     worker.NewWorkerPool(cfg.SchedulerConcurrency, cfg.SchedulerConcurrency),
		metrics:  m,
		jobs:     make(map[model.Key]JobFunc),
		stopChan: make(chan struct{}),
	}
	s.pool.SetExecutor(s.execute)
	s.pool.SetResultHandler(s.onResult)
	return s
}

// Register binds a job key to the function run when one of its triggers fires
func (s *Scheduler) Register(jobKey model.Key, fn JobFunc) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.jobs[jobKey] = fn
}

func (s *Scheduler) job(jobKey model.Key) (JobFunc, bool) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	fn, ok := s.jobs[jobKey]
	return fn, ok
}

// Start begins the scheduler tick loop
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.SchedulerEnabled {
		slog.Info("Scheduler is disabled by configuration")
		return
	}

	slog.Info("Starting scheduler",
		"instance_id", s.locks.InstanceID(),
		"tick_interval", s.cfg.SchedulerTickInterval,
		"concurrency", s.cfg.SchedulerConcurrency,
	)

	s.pool.Start()
	s.ticker = time.NewTicker(s.cfg.SchedulerTickInterval)
	s.wg.Add(1)

	go s.run(ctx)
}

// Stop gracefully stops the scheduler and releases the trigger locks this
// instance still holds
func (s *Scheduler) Stop(ctx context.Context) {
	if !s.cfg.SchedulerEnabled {
		return
	}

	slog.Info("Stopping scheduler", "instance_id", s.locks.InstanceID())

	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.ticker != nil {
		s.ticker.Stop()
	}

	// Wait for the tick loop, then for in-flight executions, with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("All scheduled executions completed")
	case <-ctx.Done():
		slog.Warn("Timeout waiting for scheduled executions to complete")
	}

	s.releaseOwnTriggerLocks(context.WithoutCancel(ctx))

	slog.Info("Scheduler stopped", "instance_id", s.locks.InstanceID())
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.tick(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.tick(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			slog.Info("Scheduler context done", "instance_id", s.locks.InstanceID())
			return
		}
	}
}

// tick fires every trigger that is due
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()

	due, err := s.triggers.FindDue(ctx, now)
	if err != nil {
		slog.Error("Failed to find due triggers", "error", err)
		return
	}

	if len(due) == 0 {
		slog.Debug("No triggers due", "instance_id", s.locks.InstanceID())
		return
	}

	slog.Debug("Found due triggers", "instance_id", s.locks.InstanceID(), "count", len(due))

	for _, trigger := range due {
		s.fire(ctx, trigger)
	}
}

// fire locks the trigger and hands it to the worker pool
func (s *Scheduler) fire(ctx context.Context, trigger model.Trigger) {
	key := trigger.Key()

	acquired, err := s.locks.TryLockTrigger(ctx, key)
	if err != nil {
		slog.Error("Failed to lock trigger", "trigger", key.String(), "error", err)
		return
	}
	if !acquired {
		slog.Debug("Trigger locked by another instance", "trigger", key.String())
		return
	}

	// Another instance may have fired it between FindDue and the lock
	current, err := s.triggers.Get(ctx, key)
	if err != nil {
		slog.Warn("Trigger vanished after locking", "trigger", key.String(), "error", err)
		s.releaseTrigger(ctx, key)
		return
	}
	if !current.Enabled || !current.NextFireTime.Equal(trigger.NextFireTime) {
		slog.Debug("Trigger already fired", "trigger", key.String())
		s.releaseTrigger(ctx, key)
		return
	}

	job := worker.Job{
		FireID:      uuid.New().String(),
		Trigger:     *current,
		ScheduledAt: current.NextFireTime,
		Context:     ctx,
	}

	if err := s.pool.Submit(job); err != nil {
		slog.Warn("Could not submit trigger firing", "trigger", key.String(), "error", err)
		s.releaseTrigger(ctx, key)
		return
	}
}

// execute runs one firing on a worker. The trigger lock is held on entry.
func (s *Scheduler) execute(ctx context.Context, job worker.Job) error {
	key := job.Trigger.Key()
	jobKey := job.Trigger.JobKey()
	defer s.releaseTrigger(ctx, key)

	held, err := s.locks.RefreshTriggerLock(ctx, key)
	if err != nil {
		return err
	}
	if !held {
		return errLockLost
	}

	acquired, err := s.locks.TryLockJob(ctx, jobKey)
	if err != nil {
		return err
	}
	if !acquired {
		return errJobBusy
	}
	defer func() {
		if err := s.locks.UnlockJob(context.WithoutCancel(ctx), jobKey); err != nil {
			slog.Error("Failed to unlock job", "job", jobKey.String(), "error", err)
		}
	}()

	firedAt := s.clock.Now()
	if err := s.advance(ctx, job.Trigger, firedAt); err != nil {
		return err
	}

	fn, ok := s.job(jobKey)
	if !ok {
		return fmt.Errorf("%w for %s", errJobNotFound, jobKey)
	}

	slog.Info("Firing trigger",
		"trigger", key.String(),
		"job", jobKey.String(),
		"fire_id", job.FireID,
		"scheduled_at", job.ScheduledAt.Format(time.RFC3339),
	)

	return runJob(ctx, fn, job)
}

// advance records the firing and moves the trigger to its next fire time.
// Fire times missed while no instance was running are skipped.
func (s *Scheduler) advance(ctx context.Context, trigger model.Trigger, firedAt time.Time) error {
	next, err := trigger.NextFireAfter(firedAt)
	if err != nil {
		return err
	}
	return s.triggers.UpdateFireTimes(context.WithoutCancel(ctx), trigger.Key(), firedAt, next)
}

func runJob(ctx context.Context, fn JobFunc, job worker.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in job",
				"error", r,
				"stack_trace", string(debug.Stack()),
				"fire_id", job.FireID,
			)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, job)
}

func (s *Scheduler) onResult(r worker.Result) {
	switch {
	case r.Error == nil:
		slog.Info("Trigger firing completed",
			"trigger", r.TriggerKey.String(),
			"fire_id", r.FireID,
			"duration_ms", r.Duration.Milliseconds(),
		)
		s.metrics.TriggerFired("success")
	case errors.Is(r.Error, errJobBusy), errors.Is(r.Error, errLockLost):
		slog.Info("Trigger firing skipped",
			"trigger", r.TriggerKey.String(),
			"fire_id", r.FireID,
			"reason", r.Error.Error(),
		)
		s.metrics.TriggerFired("skipped")
	default:
		slog.Error("Trigger firing failed",
			"trigger", r.TriggerKey.String(),
			"fire_id", r.FireID,
			"duration_ms", r.Duration.Milliseconds(),
			"error", r.Error,
		)
		s.metrics.TriggerFired("failed")
	}
}

// releaseTrigger releases the trigger lock held by this instance
func (s *Scheduler) releaseTrigger(ctx context.Context, key model.Key) {
	if err := s.locks.UnlockTrigger(context.WithoutCancel(ctx), key); err != nil {
		slog.Error("Failed to release trigger lock",
			"trigger", key.String(),
			"instance_id", s.locks.InstanceID(),
			"error", err,
		)
	}
}

func (s *Scheduler) releaseOwnTriggerLocks(ctx context.Context) {
	keys, err := s.locks.OwnTriggerLocks(ctx)
	if err != nil {
		slog.Error("Failed to list own trigger locks during shutdown", "error", err)
		return
	}
	for _, key := range keys {
		s.releaseTrigger(ctx, key)
	}
}
