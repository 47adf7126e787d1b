package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/model"
	"github.com/dandantas/cronlease/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startMs = int64(1_704_103_200_000)

func testJob() worker.Job {
	return worker.Job{
		FireID: "fire-1",
		Trigger: model.Trigger{
			KeyGroup:       "reports",
			KeyName:        "nightly",
			JobGroup:       model.DefaultGroup,
			JobName:        "webhook",
			CronExpression: "0 2 * * *",
		},
		ScheduledAt: time.UnixMilli(startMs).UTC(),
	}
}

func TestFirePostsPayload(t *testing.T) {
	var got FirePayload
	var correlation string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		correlation = r.Header.Get("X-Correlation-ID")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	clk := clock.NewManual(startMs + 250)
	n := NewNotifier(server.URL, "node-a", time.Second, clk)

	require.NoError(t, n.Fire(context.Background(), testJob()))

	assert.Equal(t, "fire-1", correlation)
	assert.Equal(t, "fire-1", got.FireID)
	assert.Equal(t, "reports.nightly", got.Trigger)
	assert.Equal(t, "DEFAULT.webhook", got.Job)
	assert.Equal(t, "0 2 * * *", got.Cron)
	assert.Equal(t, "node-a", got.InstanceID)
	assert.Equal(t, startMs, got.ScheduledAt.UnixMilli())
	assert.Equal(t, startMs+250, got.FiredAt.UnixMilli())
}

func TestFireFailsOnErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, "node-a", time.Second, clock.NewManual(startMs))

	err := n.Fire(context.Background(), testJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	clk := clock.NewManual(startMs)
	n := NewNotifier(server.URL, "node-a", time.Second, clk)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Error(t, n.Fire(ctx, testJob()))
	}
	assert.Equal(t, StateOpen, n.circuitBreaker.State())

	assert.ErrorIs(t, n.Fire(ctx, testJob()), ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load(), "open circuit does not call the endpoint")

	healthy.Store(true)
	clk.Advance(time.Minute)

	require.NoError(t, n.Fire(ctx, testJob()))
	assert.Equal(t, StateHalfOpen, n.circuitBreaker.State())
	require.NoError(t, n.Fire(ctx, testJob()))
	assert.Equal(t, StateClosed, n.circuitBreaker.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewManual(startMs)
	cb := NewCircuitBreaker(clk)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanAttempt())

	clk.Advance(59 * time.Second)
	assert.False(t, cb.CanAttempt())

	clk.Advance(time.Second)
	assert.True(t, cb.CanAttempt())
	assert.Equal(t, "half-open", cb.State().String())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanAttempt())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(clock.NewManual(startMs))

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	cb.RecordSuccess()
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, StateClosed, cb.State())
}
