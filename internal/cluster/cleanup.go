package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dandantas/cronlease/internal/metrics"
	"github.com/dandantas/cronlease/internal/model"
)

// CleanupTask reclaims the locks and membership records of dead instances.
// It is a best-effort sweep: errors are logged and the next run retries.
type CleanupTask struct {
	schedulers SchedulerStore
	locks      LockStore
	triggers   TriggerChecker
	expiry     *ExpiryCalculator
	metrics    *metrics.Metrics
}

// candidate is a dead instance considered for reclamation
type candidate struct {
	scheduler model.Scheduler
	orphan    bool // owns locks but has no membership record
}

// NewCleanupTask creates a new cleanup task
func NewCleanupTask(schedulers SchedulerStore, locks LockStore, triggers TriggerChecker, expiry *ExpiryCalculator, m *metrics.Metrics) *CleanupTask {
	return &CleanupTask{
		schedulers: schedulers,
		locks:      locks,
		triggers:   triggers,
		expiry:     expiry,
		metrics:    m,
	}
}

// Name returns the task name
func (t *CleanupTask) Name() string {
	return "cleanup"
}

// Run performs one sweep. It never panics or returns an error to the caller.
func (t *CleanupTask) Run(ctx context.Context) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in cleanup",
				"error", r,
				"stack_trace", string(debug.Stack()),
				"instance_id", t.schedulers.InstanceID(),
			)
			t.metrics.CleanupRun("aborted", time.Since(start))
		}
	}()

	if err := t.recoverDeadSchedulers(ctx); err != nil {
		slog.Warn("Error while recovering dead schedulers",
			"instance_id", t.schedulers.InstanceID(),
			"error", err,
		)
		t.metrics.CleanupRun("aborted", time.Since(start))
		return
	}

	t.metrics.CleanupRun("success", time.Since(start))
}

// recoverDeadSchedulers releases the locks of dead instances whose triggers
// are gone, then removes the instances that no longer hold any lock
func (t *CleanupTask) recoverDeadSchedulers(ctx context.Context) error {
	candidates, err := t.findDeadSchedulers(ctx)
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if !t.removeLocksWithoutTriggers(ctx, c) {
			continue
		}
		t.removeScheduler(ctx, c)
	}

	return nil
}

// findDeadSchedulers returns defunct peers and owners of orphaned locks that
// belong to this instance's cluster
func (t *CleanupTask) findDeadSchedulers(ctx context.Context) ([]candidate, error) {
	schedulers, err := t.schedulers.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(schedulers))
	var dead []candidate
	for _, s := range schedulers {
		known[s.InstanceID] = struct{}{}
		if t.expiry.HasDefunctScheduler(s) {
			dead = append(dead, candidate{scheduler: s})
		}
	}

	owners, err := t.locks.OwnerIDs(ctx)
	if err != nil {
		return nil, err
	}

	self := t.schedulers.InstanceID()
	for _, id := range owners {
		if _, ok := known[id]; ok || id == self {
			continue
		}
		slog.Info("Found locks of unknown scheduler", "instance_id", id)
		dead = append(dead, candidate{
			scheduler: model.Scheduler{Name: t.schedulers.SchedulerName(), InstanceID: id},
			orphan:    true,
		})
	}

	name := t.schedulers.SchedulerName()
	sameCluster := dead[:0]
	for _, c := range dead {
		if c.scheduler.Name == name {
			sameCluster = append(sameCluster, c)
		}
	}

	return sameCluster, nil
}

// removeLocksWithoutTriggers releases the candidate's locks whose trigger no
// longer exists. Returns true only if every lock was released; a lock whose
// trigger still exists stays so that it can be relocked once it expires.
func (t *CleanupTask) removeLocksWithoutTriggers(ctx context.Context, c candidate) bool {
	instanceID := c.scheduler.InstanceID

	locks, err := t.locks.FindLocks(ctx, instanceID)
	if err != nil {
		slog.Warn("Could not find locks of dead scheduler", "instance_id", instanceID, "error", err)
		return false
	}

	released := true
	for _, lock := range locks {
		if err := t.removeLockWithoutTrigger(ctx, lock); err != nil {
			slog.Info("Keeping lock of dead scheduler", "lock", lock.String(), "reason", err.Error())
			released = false
		}
	}

	return released
}

func (t *CleanupTask) removeLockWithoutTrigger(ctx context.Context, lock model.Lock) error {
	exists, err := t.triggers.Exists(ctx, lock.Key())
	if err != nil {
		return fmt.Errorf("trigger lookup failed: %w", err)
	}
	if exists {
		t.metrics.LockRetained()
		return fmt.Errorf("trigger %s still exists", lock.Key())
	}

	if err := t.locks.Remove(ctx, lock); err != nil {
		return err
	}

	slog.Info("Removed lock of dead scheduler, no trigger found for it", "lock", lock.String())
	t.metrics.LockReclaimed()
	return nil
}

func (t *CleanupTask) removeScheduler(ctx context.Context, c candidate) {
	s := c.scheduler
	if c.orphan {
		slog.Debug("Released all locks of unknown scheduler", "instance_id", s.InstanceID)
		return
	}

	removed, err := t.schedulers.Remove(ctx, s.InstanceID, s.LastCheckinTime)
	if err != nil {
		slog.Warn("Could not remove dead scheduler", "instance_id", s.InstanceID, "error", err)
		return
	}
	if !removed {
		slog.Info("Dead scheduler checked in again or was already removed", "instance_id", s.InstanceID)
		return
	}

	slog.Info("Removed dead scheduler",
		"instance_id", s.InstanceID,
		"last_checkin_time", s.LastCheckinTime,
	)
	t.metrics.NodeRemoved()
}
