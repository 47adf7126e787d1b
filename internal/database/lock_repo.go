package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// LockRepository handles job and trigger locks on behalf of one scheduler instance.
// Mutual exclusion comes from the unique (key_group, key_name, lock_type) index:
// inserting a lock that already exists fails with a duplicate key error.
type LockRepository struct {
	collection *mongo.Collection
	clock      clock.Clock
	instanceID string
}

// NewLockRepository creates a new lock repository owned by instanceID
func NewLockRepository(db *MongoDB, clk clock.Clock, instanceID string) *LockRepository {
	return &LockRepository{
		collection: db.GetCollection(CollectionLocks),
		clock:      clk,
		instanceID: instanceID,
	}
}

// InstanceID returns the instance that owns locks taken through this repository
func (r *LockRepository) InstanceID() string {
	return r.instanceID
}

// LockJob inserts a lock for the job. Returns ErrLockHeld if the job is already locked.
func (r *LockRepository) LockJob(ctx context.Context, key model.Key) error {
	slog.Debug("Inserting lock for job", "key", key.String(), "instance_id", r.instanceID)
	return r.insertLock(ctx, model.NewLock(model.LockTypeJob, key, r.instanceID, r.clock.Now()))
}

// LockTrigger inserts a lock for the trigger. Returns ErrLockHeld if the trigger is already locked.
func (r *LockRepository) LockTrigger(ctx context.Context, key model.Key) error {
	slog.Debug("Inserting lock for trigger", "key", key.String(), "instance_id", r.instanceID)
	return r.insertLock(ctx, model.NewLock(model.LockTypeTrigger, key, r.instanceID, r.clock.Now()))
}

func (r *LockRepository) insertLock(ctx context.Context, lock model.Lock) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.collection.InsertOne(ctxTimeout, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrLockHeld
		}
		return fmt.Errorf("failed to insert %s lock: %w", lock.Type, err)
	}

	return nil
}

// FindJobLock returns the lock for the job, or nil if there is none
func (r *LockRepository) FindJobLock(ctx context.Context, key model.Key) (*model.Lock, error) {
	return r.findLock(ctx, lockFilter(model.LockTypeJob, key))
}

// FindTriggerLock returns the lock for the trigger, or nil if there is none
func (r *LockRepository) FindTriggerLock(ctx context.Context, key model.Key) (*model.Lock, error) {
	return r.findLock(ctx, lockFilter(model.LockTypeTrigger, key))
}

func (r *LockRepository) findLock(ctx context.Context, filter bson.M) (*model.Lock, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lock model.Lock
	err := r.collection.FindOne(ctxTimeout, filter).Decode(&lock)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find lock: %w", err)
	}

	return &lock, nil
}

// FindLocks returns the trigger locks owned by instanceID
func (r *LockRepository) FindLocks(ctx context.Context, instanceID string) ([]model.Lock, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"lock_type":   model.LockTypeTrigger,
		"instance_id": instanceID,
	}

	cursor, err := r.collection.Find(ctxTimeout, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find locks: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var locks []model.Lock
	if err := cursor.All(ctxTimeout, &locks); err != nil {
		return nil, fmt.Errorf("failed to decode locks: %w", err)
	}

	return locks, nil
}

// FindOwnTriggerLocks returns the keys of triggers locked by this instance
func (r *LockRepository) FindOwnTriggerLocks(ctx context.Context) ([]model.Key, error) {
	locks, err := r.FindLocks(ctx, r.instanceID)
	if err != nil {
		return nil, err
	}

	keys := make([]model.Key, 0, len(locks))
	for _, lock := range locks {
		keys = append(keys, lock.Key())
	}
	return keys, nil
}

// OwnerIDs returns the distinct instance ids that currently own any lock
func (r *LockRepository) OwnerIDs(ctx context.Context) ([]string, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	values, err := r.collection.Distinct(ctxTimeout, "instance_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list lock owners: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Relock takes over the lock for key only if its lock_time still equals lockTime,
// i.e. nobody relocked or refreshed it since it was read.
// Returns false when the race was lost or the store failed; the caller retries later.
func (r *LockRepository) Relock(ctx context.Context, lockType model.LockType, key model.Key, lockTime time.Time) bool {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := lockFilter(lockType, key)
	filter["lock_time"] = lockTime

	result, err := r.collection.UpdateOne(ctxTimeout, filter, r.lockUpdate())
	if err != nil {
		slog.Error("Relock failed",
			"key", key.String(),
			"lock_type", lockType,
			"instance_id", r.instanceID,
			"error", err,
		)
		return false
	}

	if result.MatchedCount == 1 {
		slog.Info("Relocked", "key", key.String(), "lock_type", lockType, "instance_id", r.instanceID)
		return true
	}

	slog.Info("Could not relock",
		"key", key.String(),
		"lock_type", lockType,
		"instance_id", r.instanceID,
		"lock_time", lockTime.UnixMilli(),
	)
	return false
}

// UpdateOwnLock resets the lock time of a trigger lock held by this instance.
// Returns false if the lock is not held by this instance anymore and an
// ErrLockRefresh-wrapped error if the store failed.
func (r *LockRepository) UpdateOwnLock(ctx context.Context, key model.Key) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := lockFilter(model.LockTypeTrigger, key)
	filter["instance_id"] = r.instanceID

	result, err := r.collection.UpdateOne(ctxTimeout, filter, r.lockUpdate())
	if err != nil {
		slog.Error("Lock refresh failed", "key", key.String(), "instance_id", r.instanceID, "error", err)
		return false, fmt.Errorf("%w for instance %s: %w", ErrLockRefresh, r.instanceID, err)
	}

	if result.MatchedCount == 1 {
		slog.Debug("Refreshed lock time", "key", key.String(), "instance_id", r.instanceID)
		return true, nil
	}

	slog.Info("Could not refresh lock time", "key", key.String(), "instance_id", r.instanceID)
	return false, nil
}

// Remove deletes exactly the given lock. It is a no-op if the lock was
// relocked or refreshed after it was read.
func (r *LockRepository) Remove(ctx context.Context, lock model.Lock) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"_id":         lock.ID,
		"instance_id": lock.InstanceID,
		"lock_time":   lock.Time,
	}

	if _, err := r.collection.DeleteOne(ctxTimeout, filter); err != nil {
		return fmt.Errorf("failed to remove lock: %w", err)
	}

	return nil
}

// UnlockTrigger releases the trigger lock if it still belongs to this instance
func (r *LockRepository) UnlockTrigger(ctx context.Context, key model.Key) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := lockFilter(model.LockTypeTrigger, key)
	filter["instance_id"] = r.instanceID

	result, err := r.collection.DeleteOne(ctxTimeout, filter)
	if err != nil {
		return fmt.Errorf("failed to unlock trigger: %w", err)
	}

	if result.DeletedCount > 0 {
		slog.Debug("Removed trigger lock", "key", key.String(), "instance_id", r.instanceID)
	}

	return nil
}

// UnlockJob releases the job lock if it still belongs to this instance.
// A lock relocked by a peer after it expired is left to that peer.
func (r *LockRepository) UnlockJob(ctx context.Context, key model.Key) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := lockFilter(model.LockTypeJob, key)
	filter["instance_id"] = r.instanceID

	result, err := r.collection.DeleteOne(ctxTimeout, filter)
	if err != nil {
		return fmt.Errorf("failed to unlock job: %w", err)
	}

	if result.DeletedCount > 0 {
		slog.Debug("Removed job lock", "key", key.String(), "instance_id", r.instanceID)
	} else {
		slog.Info("Job lock no longer held", "key", key.String(), "instance_id", r.instanceID)
	}
	return nil
}

// RemoveOwnLocks deletes every lock owned by this instance.
// Used on startup when the scheduler does not run clustered.
func (r *LockRepository) RemoveOwnLocks(ctx context.Context) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.collection.DeleteMany(ctxTimeout, bson.M{"instance_id": r.instanceID})
	if err != nil {
		return 0, fmt.Errorf("failed to remove own locks: %w", err)
	}

	if result.DeletedCount > 0 {
		slog.Info("Removed own locks", "instance_id", r.instanceID, "count", result.DeletedCount)
	}

	return result.DeletedCount, nil
}

func (r *LockRepository) lockUpdate() bson.M {
	return bson.M{
		"$set": bson.M{
			"instance_id": r.instanceID,
			"lock_time":   r.clock.Now(),
		},
	}
}

func lockFilter(lockType model.LockType, key model.Key) bson.M {
	return bson.M{
		"key_group": key.Group,
		"key_name":  key.Name,
		"lock_type": lockType,
	}
}
