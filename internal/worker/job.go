package worker

import (
	"context"
	"time"

	"github.com/dandantas/cronlease/internal/model"
)

// Job is one firing of a trigger, handed to the pool after the trigger lock
// was acquired
type Job struct {
	FireID      string
	Trigger     model.Trigger
	ScheduledAt time.Time // The next_fire_time that made the trigger due
	Context     context.Context
}

// Result is the outcome of a job, reported to the pool's result handler
type Result struct {
	FireID     string
	TriggerKey model.Key
	Duration   time.Duration
	Error      error
}
