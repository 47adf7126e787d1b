package cluster

import (
	"context"
	"log/slog"
	"time"
)

// Service drives the check-in and cleanup tasks of one instance, each on its
// own executor so a slow sweep never delays a check-in
type Service struct {
	instanceID string
	checkin    *TaskExecutor
	cleanup    *TaskExecutor
}

// NewService creates the executors for the given tasks. Check-in runs every
// checkinInterval, cleanup every CleanupPeriod(checkinInterval).
func NewService(checkin *CheckinTask, cleanup *CleanupTask, checkinInterval time.Duration, instanceID string) *Service {
	return &Service{
		instanceID: instanceID,
		checkin:    NewTaskExecutor(checkin, checkinInterval, instanceID),
		cleanup:    NewTaskExecutor(cleanup, CleanupPeriod(checkinInterval), instanceID),
	}
}

// Start starts both tasks. They keep running after ctx is cancelled, until
// Shutdown: the instance must keep its lease while the host drains jobs.
func (s *Service) Start(ctx context.Context) {
	slog.Info("Starting cluster management", "instance_id", s.instanceID)
	ctx = context.WithoutCancel(ctx)
	s.checkin.Start(ctx)
	s.cleanup.Start(ctx)
}

// Shutdown stops both tasks and waits for in-flight runs
func (s *Service) Shutdown() {
	s.cleanup.Shutdown()
	s.checkin.Shutdown()
	slog.Info("Cluster management stopped", "instance_id", s.instanceID)
}
