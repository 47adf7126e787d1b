// Package lock is the host-facing side of the lock store: it acquires job and
// trigger locks and takes over locks whose owner has gone away.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dandantas/cronlease/internal/database"
	"github.com/dandantas/cronlease/internal/metrics"
	"github.com/dandantas/cronlease/internal/model"
)

// Store is the lock contract the manager needs
type Store interface {
	InstanceID() string
	LockJob(ctx context.Context, key model.Key) error
	LockTrigger(ctx context.Context, key model.Key) error
	FindJobLock(ctx context.Context, key model.Key) (*model.Lock, error)
	FindTriggerLock(ctx context.Context, key model.Key) (*model.Lock, error)
	FindOwnTriggerLocks(ctx context.Context) ([]model.Key, error)
	Relock(ctx context.Context, lockType model.LockType, key model.Key, lockTime time.Time) bool
	UpdateOwnLock(ctx context.Context, key model.Key) (bool, error)
	UnlockTrigger(ctx context.Context, key model.Key) error
	UnlockJob(ctx context.Context, key model.Key) error
}

// Expiry decides whether an existing lock may be taken over
type Expiry interface {
	IsJobLockExpired(lock model.Lock) bool
	IsTriggerLockExpired(ctx context.Context, lock model.Lock) (bool, error)
}

// Manager acquires, refreshes and releases locks for one scheduler instance
type Manager struct {
	store   Store
	expiry  Expiry
	metrics *metrics.Metrics
}

// NewManager creates a new lock manager
func NewManager(store Store, expiry Expiry, m *metrics.Metrics) *Manager {
	return &Manager{
		store:   store,
		expiry:  expiry,
		metrics: m,
	}
}

// TryLockTrigger tries to lock the trigger. A lock held by another instance is
// taken over only if it is older than the trigger lock timeout and its owner
// is defunct or unknown.
func (m *Manager) TryLockTrigger(ctx context.Context, key model.Key) (bool, error) {
	defer m.metrics.ObserveOp("try_lock_trigger", time.Now())

	return m.tryLock(ctx, model.LockTypeTrigger, key,
		m.store.LockTrigger,
		m.store.FindTriggerLock,
		func(lock model.Lock) (bool, error) { return m.expiry.IsTriggerLockExpired(ctx, lock) },
	)
}

// TryLockJob tries to lock the job. A lock held by another instance is taken
// over once it is older than the job lock timeout.
func (m *Manager) TryLockJob(ctx context.Context, key model.Key) (bool, error) {
	defer m.metrics.ObserveOp("try_lock_job", time.Now())

	return m.tryLock(ctx, model.LockTypeJob, key,
		m.store.LockJob,
		m.store.FindJobLock,
		func(lock model.Lock) (bool, error) { return m.expiry.IsJobLockExpired(lock), nil },
	)
}

func (m *Manager) tryLock(
	ctx context.Context,
	lockType model.LockType,
	key model.Key,
	insert func(context.Context, model.Key) error,
	find func(context.Context, model.Key) (*model.Lock, error),
	expired func(model.Lock) (bool, error),
) (bool, error) {
	kind := string(lockType)

	err := insert(ctx, key)
	if err == nil {
		m.metrics.LockAcquire(kind, metrics.ResultAcquired)
		return true, nil
	}
	if !errors.Is(err, database.ErrLockHeld) {
		m.metrics.LockAcquire(kind, metrics.ResultError)
		return false, err
	}

	existing, err := find(ctx, key)
	if err != nil {
		m.metrics.LockAcquire(kind, metrics.ResultError)
		return false, err
	}
	if existing == nil {
		// Released between insert and lookup
		return m.retryInsert(ctx, kind, key, insert)
	}

	isExpired, err := expired(*existing)
	if err != nil {
		m.metrics.LockAcquire(kind, metrics.ResultError)
		return false, err
	}
	if !isExpired {
		slog.Debug("Lock held by another instance",
			"key", key.String(),
			"lock_type", lockType,
			"owner", existing.InstanceID,
			"instance_id", m.store.InstanceID(),
		)
		m.metrics.LockAcquire(kind, metrics.ResultBusy)
		return false, nil
	}

	slog.Info("Found expired lock, relocking", "lock", existing.String(), "instance_id", m.store.InstanceID())
	if m.store.Relock(ctx, lockType, key, existing.Time) {
		m.metrics.LockAcquire(kind, metrics.ResultRelocked)
		return true, nil
	}

	m.metrics.LockAcquire(kind, metrics.ResultBusy)
	return false, nil
}

func (m *Manager) retryInsert(ctx context.Context, kind string, key model.Key, insert func(context.Context, model.Key) error) (bool, error) {
	err := insert(ctx, key)
	switch {
	case err == nil:
		m.metrics.LockAcquire(kind, metrics.ResultAcquired)
		return true, nil
	case errors.Is(err, database.ErrLockHeld):
		m.metrics.LockAcquire(kind, metrics.ResultBusy)
		return false, nil
	default:
		m.metrics.LockAcquire(kind, metrics.ResultError)
		return false, err
	}
}

// RefreshTriggerLock resets the lock time of a trigger lock this instance
// holds. Returns false if the lock was lost.
func (m *Manager) RefreshTriggerLock(ctx context.Context, key model.Key) (bool, error) {
	defer m.metrics.ObserveOp("refresh", time.Now())
	return m.store.UpdateOwnLock(ctx, key)
}

// UnlockTrigger releases the trigger lock if this instance holds it
func (m *Manager) UnlockTrigger(ctx context.Context, key model.Key) error {
	return m.store.UnlockTrigger(ctx, key)
}

// UnlockJob releases the job lock
func (m *Manager) UnlockJob(ctx context.Context, key model.Key) error {
	return m.store.UnlockJob(ctx, key)
}

// OwnTriggerLocks returns the keys of the triggers this instance holds
func (m *Manager) OwnTriggerLocks(ctx context.Context) ([]model.Key, error) {
	return m.store.FindOwnTriggerLocks(ctx)
}

// InstanceID returns the instance the manager locks for
func (m *Manager) InstanceID() string {
	return m.store.InstanceID()
}
