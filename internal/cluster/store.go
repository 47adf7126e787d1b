// Package cluster keeps scheduler instances aware of each other through the
// shared store: every instance checks in periodically, and any instance may
// reclaim the locks and membership records of peers whose lease ran out.
package cluster

import (
	"context"

	"github.com/dandantas/cronlease/internal/model"
)

// SchedulerStore is the membership contract used by the cluster tasks
type SchedulerStore interface {
	SchedulerName() string
	InstanceID() string

	// CheckIn upserts this instance's record with the current time
	CheckIn(ctx context.Context) error

	FindAll(ctx context.Context) ([]model.Scheduler, error)

	// FindInstance returns nil without error when there is no such record
	FindInstance(ctx context.Context, instanceID string) (*model.Scheduler, error)

	// Remove deletes the record only while its last check-in time still equals
	// lastCheckinTime and reports whether a record was deleted
	Remove(ctx context.Context, instanceID string, lastCheckinTime int64) (bool, error)

	IsSelf(s model.Scheduler) bool
}

// LockStore is the part of the lock contract the cleanup sweep needs
type LockStore interface {
	// FindLocks returns the trigger locks owned by instanceID
	FindLocks(ctx context.Context, instanceID string) ([]model.Lock, error)

	// OwnerIDs returns the distinct owners of all current locks
	OwnerIDs(ctx context.Context) ([]string, error)

	// Remove deletes exactly the given lock if it is unchanged
	Remove(ctx context.Context, lock model.Lock) error
}

// TriggerChecker answers whether a trigger is still in the scheduler's catalog
type TriggerChecker interface {
	Exists(ctx context.Context, key model.Key) (bool, error)
}

// ClusterTask is a periodic maintenance action run by a TaskExecutor
type ClusterTask interface {
	Name() string
	Run(ctx context.Context)
}
