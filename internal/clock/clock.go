package clock

import "time"

// Clock supplies the current time to code that makes lease decisions.
// Values are truncated to millisecond precision so they survive a round
// trip through a BSON date unchanged.
type Clock interface {
	// Millis returns the current time in milliseconds since the epoch
	Millis() int64
	// Now returns the current time in UTC
	Now() time.Time
	// FromMillis builds a UTC time from milliseconds since the epoch
	FromMillis(millis int64) time.Time
}

// System is the wall clock.
type System struct{}

// Millis returns the wall clock time in milliseconds since the epoch
func (System) Millis() int64 {
	return time.Now().UnixMilli()
}

// Now returns the wall clock time in UTC
func (s System) Now() time.Time {
	return s.FromMillis(s.Millis())
}

// FromMillis builds a UTC time from milliseconds since the epoch
func (System) FromMillis(millis int64) time.Time {
	return time.UnixMilli(millis).UTC()
}
