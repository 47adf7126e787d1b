package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Checkin("success")
		m.CleanupRun("success", time.Millisecond)
		m.LockReclaimed()
		m.LockRetained()
		m.NodeRemoved()
		m.LockAcquire("trigger", ResultAcquired)
		m.ObserveOp("try_lock_trigger", time.Now())
		m.TriggerFired("success")
	})
}

func TestCountersAreRegisteredAndCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Checkin("success")
	m.Checkin("success")
	m.Checkin("fatal")
	m.LockReclaimed()
	m.NodeRemoved()
	m.LockAcquire("trigger", ResultBusy)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CheckinTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckinTotal.WithLabelValues("fatal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LocksReclaimed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodesRemoved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockAcquireTotal.WithLabelValues("trigger", ResultBusy)))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cluster_checkin_total")
	assert.Contains(t, names, "cluster_locks_reclaimed_total")
}

func TestNewWithoutRegisterer(t *testing.T) {
	m := New(nil)
	require.NotNil(t, m)
	m.NodeRemoved()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodesRemoved))
}
