package clock

import (
	"sync"
	"time"
)

// Manual is a controllable clock for deterministic tests.
type Manual struct {
	mu     sync.Mutex
	millis int64
}

// NewManual creates a manual clock starting at the given epoch millisecond
func NewManual(millis int64) *Manual {
	return &Manual{millis: millis}
}

// Millis returns the manual time in milliseconds since the epoch
func (m *Manual) Millis() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.millis
}

// Now returns the manual time in UTC
func (m *Manual) Now() time.Time {
	return m.FromMillis(m.Millis())
}

// FromMillis builds a UTC time from milliseconds since the epoch
func (m *Manual) FromMillis(millis int64) time.Time {
	return time.UnixMilli(millis).UTC()
}

// Set moves the clock to the given epoch millisecond
func (m *Manual) Set(millis int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.millis = millis
}

// Advance moves the clock forward by d and returns the new time in millis.
// Negative durations are ignored.
func (m *Manual) Advance(d time.Duration) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.millis += d.Milliseconds()
	}
	return m.millis
}
