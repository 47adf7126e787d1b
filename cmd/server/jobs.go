package main

import (
	"context"
	"log/slog"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/config"
	"github.com/dandantas/cronlease/internal/model"
	"github.com/dandantas/cronlease/internal/scheduler"
	"github.com/dandantas/cronlease/internal/webhook"
	"github.com/dandantas/cronlease/internal/worker"
)

// registerJobs binds the jobs this binary can run
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, clk clock.Clock) {
	sched.Register(model.NewKey(model.DefaultGroup, "log"), logJob)

	if cfg.WebhookURL != "" {
		notifier := webhook.NewNotifier(cfg.WebhookURL, cfg.InstanceID, cfg.WebhookTimeout, clk)
		sched.Register(model.NewKey(model.DefaultGroup, "webhook"), notifier.Fire)
		slog.Info("Webhook job registered", "webhook_url", cfg.WebhookURL)
	}
}

// logJob records the firing. Useful to check that a cluster fires each
// trigger exactly once per fire time.
func logJob(ctx context.Context, job worker.Job) error {
	slog.InfoContext(ctx, "Trigger fired",
		"fire_id", job.FireID,
		"trigger", job.Trigger.Key().String(),
		"scheduled_at", job.ScheduledAt,
	)
	return nil
}
