package cluster

import (
	"math"
	"time"
)

// RetryPolicy handles exponential backoff between check-in attempts
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NewRetryPolicy creates a policy that spreads maxAttempts attempts over at
// most half of the check-in interval, so a retried check-in still lands
// before the next one is due.
func NewRetryPolicy(maxAttempts int, checkinInterval time.Duration) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     checkinInterval / 2,
		Multiplier:   2.0,
	}
	p.SetDefaults()
	return p
}

// SetDefaults sets default values for unset fields
func (p *RetryPolicy) SetDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier == 0 {
		p.Multiplier = 2.0
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
}

// CalculateDelay returns the delay before the given attempt.
// Formula: delay = min(initial_delay * (multiplier ^ (attempt-2)), max_delay), zero for the first attempt.
func (p RetryPolicy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-2))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt may follow the given failed attempt
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}
