package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/database"
	"github.com/dandantas/cronlease/internal/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Operation names accepted by Store.Fail.
const (
	OpCheckIn         = "check_in"
	OpFindAll         = "find_all"
	OpFindInstance    = "find_instance"
	OpRemoveScheduler = "remove_scheduler"
	OpInsertLock      = "insert_lock"
	OpFindLock        = "find_lock"
	OpFindLocks       = "find_locks"
	OpOwnerIDs        = "owner_ids"
	OpRelock          = "relock"
	OpUpdateOwnLock   = "update_own_lock"
	OpRemoveLock      = "remove_lock"
	OpTriggerExists   = "trigger_exists"
)

type lockKey struct {
	lockType model.LockType
	key      model.Key
}

// Store is an in-memory stand-in for the schedulers, locks and triggers
// collections, shared by any number of simulated instances.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.Mutex

	schedulers map[string]model.Scheduler
	locks      map[lockKey]model.Lock
	triggers   map[model.Key]model.Trigger

	// failures holds injected errors keyed by operation, or operation:argument
	failures map[string]error
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		schedulers: make(map[string]model.Scheduler),
		locks:      make(map[lockKey]model.Lock),
		triggers:   make(map[model.Key]model.Trigger),
		failures:   make(map[string]error),
	}
}

// Fail makes operation op return err. When arg is given the failure only
// applies to calls for that argument (instance id or key string).
// A nil err clears the failure.
func (s *Store) Fail(op string, err error, arg ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := op
	if len(arg) > 0 {
		name = op + ":" + arg[0]
	}
	if err == nil {
		delete(s.failures, name)
		return
	}
	s.failures[name] = err
}

// failure must be called with s.mu held
func (s *Store) failure(op string, arg string) error {
	if err, ok := s.failures[op]; ok {
		return err
	}
	if err, ok := s.failures[op+":"+arg]; ok {
		return err
	}
	return nil
}

// PutScheduler stores a membership record as is
func (s *Store) PutScheduler(rec model.Scheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedulers[rec.InstanceID] = rec
}

// PutLock stores a lock record as is, replacing any lock for the same key and type
func (s *Store) PutLock(lock model.Lock) model.Lock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lock.ID.IsZero() {
		lock.ID = primitive.NewObjectID()
	}
	s.locks[lockKey{lock.Type, lock.Key()}] = lock
	return lock
}

// SchedulerRecords returns a copy of all membership records sorted by instance id
func (s *Store) SchedulerRecords() []model.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]model.Scheduler, 0, len(s.schedulers))
	for _, rec := range s.schedulers {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].InstanceID < result[k].InstanceID
	})
	return result
}

// LockRecords returns a copy of all lock records sorted by type and key
func (s *Store) LockRecords() []model.Lock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocks(func(model.Lock) bool { return true })
}

func (s *Store) sortedLocks(match func(model.Lock) bool) []model.Lock {
	result := make([]model.Lock, 0, len(s.locks))
	for _, l := range s.locks {
		if match(l) {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, k int) bool {
		if result[i].Type != result[k].Type {
			return result[i].Type < result[k].Type
		}
		return result[i].Key().String() < result[k].Key().String()
	})
	return result
}

// ──────────────────────────────────────────────────
// Membership
// ──────────────────────────────────────────────────

// SchedulerStore is the membership view of one instance
type SchedulerStore struct {
	store         *Store
	clock         clock.Clock
	schedulerName string
	instanceID    string
	lease         time.Duration
}

// Schedulers returns a membership store bound to instanceID
func (s *Store) Schedulers(clk clock.Clock, schedulerName, instanceID string, lease time.Duration) *SchedulerStore {
	return &SchedulerStore{
		store:         s,
		clock:         clk,
		schedulerName: schedulerName,
		instanceID:    instanceID,
		lease:         lease,
	}
}

// SchedulerName returns the cluster name of this instance
func (m *SchedulerStore) SchedulerName() string { return m.schedulerName }

// InstanceID returns the id of this instance
func (m *SchedulerStore) InstanceID() string { return m.instanceID }

// CheckIn upserts this instance's record with the current time
func (m *SchedulerStore) CheckIn(_ context.Context) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if err := m.store.failure(OpCheckIn, m.instanceID); err != nil {
		return fmt.Errorf("failed to check in: %w", err)
	}

	m.store.schedulers[m.instanceID] = model.Scheduler{
		Name:            m.schedulerName,
		InstanceID:      m.instanceID,
		LastCheckinTime: m.clock.Millis(),
		CheckinInterval: m.lease.Milliseconds(),
	}
	return nil
}

// FindAll returns every membership record
func (m *SchedulerStore) FindAll(_ context.Context) ([]model.Scheduler, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if err := m.store.failure(OpFindAll, ""); err != nil {
		return nil, fmt.Errorf("failed to list schedulers: %w", err)
	}

	result := make([]model.Scheduler, 0, len(m.store.schedulers))
	for _, rec := range m.store.schedulers {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].InstanceID < result[k].InstanceID
	})
	return result, nil
}

// FindInstance returns the record of instanceID, or nil if there is none
func (m *SchedulerStore) FindInstance(_ context.Context, instanceID string) (*model.Scheduler, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if err := m.store.failure(OpFindInstance, instanceID); err != nil {
		return nil, fmt.Errorf("failed to get scheduler: %w", err)
	}

	rec, ok := m.store.schedulers[instanceID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Remove deletes the record only if its last check-in time is unchanged
func (m *SchedulerStore) Remove(_ context.Context, instanceID string, lastCheckinTime int64) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if err := m.store.failure(OpRemoveScheduler, instanceID); err != nil {
		return false, fmt.Errorf("failed to remove scheduler: %w", err)
	}

	rec, ok := m.store.schedulers[instanceID]
	if !ok || rec.LastCheckinTime != lastCheckinTime {
		return false, nil
	}
	delete(m.store.schedulers, instanceID)
	return true, nil
}

// IsSelf reports whether the record belongs to this instance
func (m *SchedulerStore) IsSelf(rec model.Scheduler) bool {
	return rec.InstanceID == m.instanceID
}

// ──────────────────────────────────────────────────
// Locks
// ──────────────────────────────────────────────────

// LockStore is the lock view of one instance
type LockStore struct {
	store      *Store
	clock      clock.Clock
	instanceID string
}

// Locks returns a lock store owned by instanceID
func (s *Store) Locks(clk clock.Clock, instanceID string) *LockStore {
	return &LockStore{store: s, clock: clk, instanceID: instanceID}
}

// InstanceID returns the instance that owns locks taken through this store
func (l *LockStore) InstanceID() string { return l.instanceID }

// LockJob inserts a job lock, failing with database.ErrLockHeld if present
func (l *LockStore) LockJob(_ context.Context, key model.Key) error {
	return l.insert(model.LockTypeJob, key)
}

// LockTrigger inserts a trigger lock, failing with database.ErrLockHeld if present
func (l *LockStore) LockTrigger(_ context.Context, key model.Key) error {
	return l.insert(model.LockTypeTrigger, key)
}

func (l *LockStore) insert(lockType model.LockType, key model.Key) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if err := l.store.failure(OpInsertLock, key.String()); err != nil {
		return fmt.Errorf("failed to insert %s lock: %w", lockType, err)
	}

	k := lockKey{lockType, key}
	if _, exists := l.store.locks[k]; exists {
		return database.ErrLockHeld
	}
	l.store.locks[k] = model.NewLock(lockType, key, l.instanceID, l.clock.Now())
	return nil
}

// FindJobLock returns the job lock, or nil
func (l *LockStore) FindJobLock(_ context.Context, key model.Key) (*model.Lock, error) {
	return l.find(model.LockTypeJob, key)
}

// FindTriggerLock returns the trigger lock, or nil
func (l *LockStore) FindTriggerLock(_ context.Context, key model.Key) (*model.Lock, error) {
	return l.find(model.LockTypeTrigger, key)
}

func (l *LockStore) find(lockType model.LockType, key model.Key) (*model.Lock, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if err := l.store.failure(OpFindLock, key.String()); err != nil {
		return nil, fmt.Errorf("failed to find lock: %w", err)
	}

	lock, ok := l.store.locks[lockKey{lockType, key}]
	if !ok {
		return nil, nil
	}
	return &lock, nil
}

// FindLocks returns the trigger locks owned by instanceID
func (l *LockStore) FindLocks(_ context.Context, instanceID string) ([]model.Lock, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if err := l.store.failure(OpFindLocks, instanceID); err != nil {
		return nil, fmt.Errorf("failed to find locks: %w", err)
	}

	return l.store.sortedLocks(func(lock model.Lock) bool {
		return lock.Type == model.LockTypeTrigger && lock.InstanceID == instanceID
	}), nil
}

// FindOwnTriggerLocks returns the keys of triggers locked by this instance
func (l *LockStore) FindOwnTriggerLocks(ctx context.Context) ([]model.Key, error) {
	locks, err := l.FindLocks(ctx, l.instanceID)
	if err != nil {
		return nil, err
	}
	keys := make([]model.Key, 0, len(locks))
	for _, lock := range locks {
		keys = append(keys, lock.Key())
	}
	return keys, nil
}

// OwnerIDs returns the distinct instance ids owning any lock
func (l *LockStore) OwnerIDs(_ context.Context) ([]string, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if err := l.store.failure(OpOwnerIDs, ""); err != nil {
		return nil, fmt.Errorf("failed to list lock owners: %w", err)
	}

	seen := make(map[string]struct{})
	for _, lock := range l.store.locks {
		seen[lock.InstanceID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Relock takes over the lock only if its lock time still equals lockTime
func (l *LockStore) Relock(_ context.Context, lockType model.LockType, key model.Key, lockTime time.Time) bool {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if err := l.store.failure(OpRelock, key.String()); err != nil {
		return false
	}

	k := lockKey{lockType, key}
	lock, ok := l.store.locks[k]
	if !ok || !lock.Time.Equal(lockTime) {
		return false
	}
	lock.InstanceID = l.instanceID
	lock.Time = l.clock.Now()
	l.store.locks[k] = lock
	return true
}

// UpdateOwnLock resets the lock time of a trigger lock held by this instance
func (l *LockStore) UpdateOwnLock(_ context.Context, key model.Key) (bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if err := l.store.failure(OpUpdateOwnLock, key.String()); err != nil {
		return false, fmt.Errorf("%w for instance %s: %w", database.ErrLockRefresh, l.instanceID, err)
	}

	k := lockKey{model.LockTypeTrigger, key}
	lock, ok := l.store.locks[k]
	if !ok || lock.InstanceID != l.instanceID {
		return false, nil
	}
	lock.Time = l.clock.Now()
	l.store.locks[k] = lock
	return true, nil
}

// Remove deletes exactly the given lock if it is unchanged
func (l *LockStore) Remove(_ context.Context, lock model.Lock) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if err := l.store.failure(OpRemoveLock, lock.Key().String()); err != nil {
		return fmt.Errorf("failed to remove lock: %w", err)
	}

	k := lockKey{lock.Type, lock.Key()}
	current, ok := l.store.locks[k]
	if ok && current.ID == lock.ID && current.InstanceID == lock.InstanceID && current.Time.Equal(lock.Time) {
		delete(l.store.locks, k)
	}
	return nil
}

// UnlockTrigger releases the trigger lock if it belongs to this instance
func (l *LockStore) UnlockTrigger(_ context.Context, key model.Key) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	k := lockKey{model.LockTypeTrigger, key}
	if lock, ok := l.store.locks[k]; ok && lock.InstanceID == l.instanceID {
		delete(l.store.locks, k)
	}
	return nil
}

// UnlockJob releases the job lock if it belongs to this instance
func (l *LockStore) UnlockJob(_ context.Context, key model.Key) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	k := lockKey{model.LockTypeJob, key}
	if lock, ok := l.store.locks[k]; ok && lock.InstanceID == l.instanceID {
		delete(l.store.locks, k)
	}
	return nil
}

// RemoveOwnLocks deletes every lock owned by this instance
func (l *LockStore) RemoveOwnLocks(_ context.Context) (int64, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	var removed int64
	for k, lock := range l.store.locks {
		if lock.InstanceID == l.instanceID {
			delete(l.store.locks, k)
			removed++
		}
	}
	return removed, nil
}

// ──────────────────────────────────────────────────
// Triggers
// ──────────────────────────────────────────────────

// TriggerStore is the trigger catalog view of the store
type TriggerStore struct {
	store *Store
}

// Triggers returns the trigger catalog
func (s *Store) Triggers() *TriggerStore {
	return &TriggerStore{store: s}
}

// Create inserts a trigger, failing with database.ErrTriggerExists on duplicates
func (t *TriggerStore) Create(_ context.Context, trigger *model.Trigger) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	key := trigger.Key()
	if _, exists := t.store.triggers[key]; exists {
		return fmt.Errorf("%w: %s", database.ErrTriggerExists, key)
	}
	if trigger.ID.IsZero() {
		trigger.ID = primitive.NewObjectID()
	}
	t.store.triggers[key] = *trigger
	return nil
}

// Exists reports whether a trigger with the key is in the catalog
func (t *TriggerStore) Exists(_ context.Context, key model.Key) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.store.failure(OpTriggerExists, key.String()); err != nil {
		return false, fmt.Errorf("failed to look up trigger: %w", err)
	}

	_, ok := t.store.triggers[key]
	return ok, nil
}

// Get retrieves a trigger by key
func (t *TriggerStore) Get(_ context.Context, key model.Key) (*model.Trigger, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	trigger, ok := t.store.triggers[key]
	if !ok {
		return nil, database.ErrTriggerNotFound
	}
	return &trigger, nil
}

// List returns all triggers sorted by key
func (t *TriggerStore) List(_ context.Context) ([]model.Trigger, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	result := make([]model.Trigger, 0, len(t.store.triggers))
	for _, trigger := range t.store.triggers {
		result = append(result, trigger)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].Key().String() < result[k].Key().String()
	})
	return result, nil
}

// Delete removes a trigger
func (t *TriggerStore) Delete(_ context.Context, key model.Key) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if _, ok := t.store.triggers[key]; !ok {
		return database.ErrTriggerNotFound
	}
	delete(t.store.triggers, key)
	return nil
}

// FindDue returns enabled triggers whose next fire time is not after now
func (t *TriggerStore) FindDue(_ context.Context, now time.Time) ([]model.Trigger, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	var due []model.Trigger
	for _, trigger := range t.store.triggers {
		if trigger.Enabled && !trigger.NextFireTime.After(now) {
			due = append(due, trigger)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		return due[i].Key().String() < due[k].Key().String()
	})
	return due, nil
}

// UpdateFireTimes records a firing and the next fire time
func (t *TriggerStore) UpdateFireTimes(_ context.Context, key model.Key, previous, next time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	trigger, ok := t.store.triggers[key]
	if !ok {
		return database.ErrTriggerNotFound
	}
	trigger.PreviousFireTime = previous
	trigger.NextFireTime = next
	t.store.triggers[key] = trigger
	return nil
}
