package cluster

import "time"

// MinimumCleanupPeriod is the lower bound of the cleanup period
const MinimumCleanupPeriod = 60 * time.Second

// CleanupPeriod returns the cleanup period for the given check-in interval:
// the check-in interval, but never less than MinimumCleanupPeriod
func CleanupPeriod(checkinInterval time.Duration) time.Duration {
	if checkinInterval < MinimumCleanupPeriod {
		return MinimumCleanupPeriod
	}
	return checkinInterval
}
