package database

import "errors"

var (
	// ErrLockHeld is returned when a lock record for the key already exists.
	// It is the normal "someone else holds it" outcome, not a failure.
	ErrLockHeld = errors.New("lock already held")

	// ErrLockRefresh is returned when refreshing an own lock fails in the store
	ErrLockRefresh = errors.New("lock refresh failed")

	ErrTriggerExists   = errors.New("trigger already exists")
	ErrTriggerNotFound = errors.New("trigger not found")
)
