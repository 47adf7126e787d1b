package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/model"
)

// ExpiryCalculator decides whether locks and instances have expired
type ExpiryCalculator struct {
	schedulers     SchedulerStore
	clock          clock.Clock
	jobTimeout     time.Duration
	triggerTimeout time.Duration
}

// NewExpiryCalculator creates a calculator with independent job and trigger lock timeouts
func NewExpiryCalculator(schedulers SchedulerStore, clk clock.Clock, jobTimeout, triggerTimeout time.Duration) *ExpiryCalculator {
	return &ExpiryCalculator{
		schedulers:     schedulers,
		clock:          clk,
		jobTimeout:     jobTimeout,
		triggerTimeout: triggerTimeout,
	}
}

// IsJobLockExpired reports whether the job lock is older than the job lock timeout
func (e *ExpiryCalculator) IsJobLockExpired(lock model.Lock) bool {
	return e.isLockExpired(lock, e.jobTimeout)
}

// IsTriggerLockExpired reports whether the trigger lock is older than the
// trigger lock timeout and its owner is defunct. A live owner may hold a
// trigger lock past the timeout, so age alone is not enough. An owner without
// a membership record counts as defunct.
func (e *ExpiryCalculator) IsTriggerLockExpired(ctx context.Context, lock model.Lock) (bool, error) {
	if !e.isLockExpired(lock, e.triggerTimeout) {
		return false, nil
	}
	return e.hasDefunctOwner(ctx, lock.InstanceID)
}

// IsDefunct reports whether the instance's lease has run out
func (e *ExpiryCalculator) IsDefunct(s model.Scheduler) bool {
	return s.IsDefunct(e.clock.Millis())
}

// HasDefunctScheduler reports whether s is defunct and is not this instance.
// An instance never judges itself defunct.
func (e *ExpiryCalculator) HasDefunctScheduler(s model.Scheduler) bool {
	return e.IsDefunct(s) && !e.schedulers.IsSelf(s)
}

func (e *ExpiryCalculator) hasDefunctOwner(ctx context.Context, instanceID string) (bool, error) {
	if instanceID == e.schedulers.InstanceID() {
		return false, nil
	}

	owner, err := e.schedulers.FindInstance(ctx, instanceID)
	if err != nil {
		return false, err
	}
	if owner == nil {
		slog.Debug("No such scheduler, treating lock owner as defunct", "instance_id", instanceID)
		return true, nil
	}
	return e.HasDefunctScheduler(*owner), nil
}

func (e *ExpiryCalculator) isLockExpired(lock model.Lock, timeout time.Duration) bool {
	elapsed := e.clock.Millis() - lock.Time.UnixMilli()
	return elapsed > timeout.Milliseconds()
}
