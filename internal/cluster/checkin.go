package cluster

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dandantas/cronlease/internal/metrics"
)

// DefaultErrorHandler stops the process. An instance that cannot check in
// will soon be judged defunct by its peers, which then take over its
// triggers; it must not keep running jobs after that.
func DefaultErrorHandler() {
	slog.Error("Stopping process after failed check-in")
	os.Exit(1)
}

// CheckinTask refreshes this instance's membership record
type CheckinTask struct {
	schedulers   SchedulerStore
	retry        RetryPolicy
	metrics      *metrics.Metrics
	errorHandler func()
}

// NewCheckinTask creates a check-in task that escalates persistent failures
// to DefaultErrorHandler
func NewCheckinTask(schedulers SchedulerStore, retry RetryPolicy, m *metrics.Metrics) *CheckinTask {
	retry.SetDefaults()
	return &CheckinTask{
		schedulers:   schedulers,
		retry:        retry,
		metrics:      m,
		errorHandler: DefaultErrorHandler,
	}
}

// SetErrorHandler replaces the handler invoked when check-in keeps failing.
// Useful for tests and for deployments supervised externally.
func (t *CheckinTask) SetErrorHandler(handler func()) {
	t.errorHandler = handler
}

// Name returns the task name
func (t *CheckinTask) Name() string {
	return "checkin"
}

// Run checks in, retrying per the retry policy, and invokes the error
// handler when every attempt failed
func (t *CheckinTask) Run(ctx context.Context) {
	slog.Debug("Node checks in",
		"scheduler_name", t.schedulers.SchedulerName(),
		"instance_id", t.schedulers.InstanceID(),
	)

	for attempt := 1; ; attempt++ {
		err := t.schedulers.CheckIn(ctx)
		if err == nil {
			t.metrics.Checkin("success")
			return
		}

		if ctx.Err() != nil {
			slog.Warn("Check-in abandoned, context done",
				"instance_id", t.schedulers.InstanceID(),
				"error", err,
			)
			return
		}

		if !t.retry.ShouldRetry(attempt) {
			slog.Error("Node could not check in",
				"instance_id", t.schedulers.InstanceID(),
				"attempts", attempt,
				"error", err,
			)
			t.metrics.Checkin("fatal")
			t.errorHandler()
			return
		}

		delay := t.retry.CalculateDelay(attempt + 1)
		slog.Warn("Check-in failed, retrying",
			"instance_id", t.schedulers.InstanceID(),
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		t.metrics.Checkin("retry")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}
