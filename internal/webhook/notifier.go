// Package webhook provides a job that reports trigger firings to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/worker"
)

// ErrCircuitOpen is returned while the endpoint is considered down
var ErrCircuitOpen = errors.New("circuit breaker is open")

// FirePayload is the JSON body posted for each firing
type FirePayload struct {
	FireID      string    `json:"fire_id"`
	Trigger     string    `json:"trigger"`
	Job         string    `json:"job"`
	Cron        string    `json:"cron_expression"`
	ScheduledAt time.Time `json:"scheduled_at"`
	FiredAt     time.Time `json:"fired_at"`
	InstanceID  string    `json:"instance_id"`
}

// Notifier posts a FirePayload to a fixed URL every time a trigger fires.
// Its Fire method is registered as a scheduler job.
type Notifier struct {
	url            string
	instanceID     string
	clock          clock.Clock
	httpClient     *http.Client
	circuitBreaker *CircuitBreaker
}

// NewNotifier creates a notifier for url
func NewNotifier(url, instanceID string, timeout time.Duration, clk clock.Clock) *Notifier {
	return &Notifier{
		url:            url,
		instanceID:     instanceID,
		clock:          clk,
		httpClient:     newHTTPClient(timeout),
		circuitBreaker: NewCircuitBreaker(clk),
	}
}

// newHTTPClient creates an HTTP client with connection pooling
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// Fire delivers one firing. A failed delivery fails the job; the next fire
// time of the trigger is the retry.
func (n *Notifier) Fire(ctx context.Context, job worker.Job) error {
	if !n.circuitBreaker.CanAttempt() {
		slog.WarnContext(ctx, "Skipping webhook delivery",
			"fire_id", job.FireID,
			"webhook_url", n.url,
			"circuit_state", n.circuitBreaker.State().String(),
		)
		return ErrCircuitOpen
	}

	payload := FirePayload{
		FireID:      job.FireID,
		Trigger:     job.Trigger.Key().String(),
		Job:         job.Trigger.JobKey().String(),
		Cron:        job.Trigger.CronExpression,
		ScheduledAt: job.ScheduledAt,
		FiredAt:     n.clock.Now(),
		InstanceID:  n.instanceID,
	}

	start := time.Now()
	status, err := n.deliver(ctx, payload)
	if err != nil {
		n.circuitBreaker.RecordFailure()
		slog.ErrorContext(ctx, "Webhook delivery failed",
			"fire_id", job.FireID,
			"webhook_url", n.url,
			"status_code", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"circuit_state", n.circuitBreaker.State().String(),
			"error", err,
		)
		return err
	}

	n.circuitBreaker.RecordSuccess()
	slog.InfoContext(ctx, "Webhook delivered",
		"fire_id", job.FireID,
		"webhook_url", n.url,
		"status_code", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// deliver performs a single POST and returns the response status
func (n *Notifier) deliver(ctx context.Context, payload FirePayload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", payload.FireID)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
