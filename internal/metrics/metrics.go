package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of the cluster layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CheckinTotal      *prometheus.CounterVec // result=success|retry|fatal
	CleanupRunsTotal  *prometheus.CounterVec // result=success|aborted
	CleanupDurationMS prometheus.Histogram
	LocksReclaimed    prometheus.Counter
	LocksRetained     prometheus.Counter // trigger still exists
	NodesRemoved      prometheus.Counter
	LockAcquireTotal  *prometheus.CounterVec   // kind=job|trigger, result=acquired|relocked|busy|error
	OpLatencyMS       *prometheus.HistogramVec // op=try_lock_job|try_lock_trigger|refresh
	TriggerFiresTotal *prometheus.CounterVec   // result=success|failed|skipped
}

// Lock acquisition outcomes
const (
	ResultAcquired = "acquired"
	ResultRelocked = "relocked"
	ResultBusy     = "busy"
	ResultError    = "error"
)

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckinTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cluster_checkin_total",
				Help: "Check-in attempts by result",
			},
			[]string{"result"},
		),
		CleanupRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cluster_cleanup_runs_total",
				Help: "Cleanup sweeps by result",
			},
			[]string{"result"},
		),
		CleanupDurationMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cluster_cleanup_duration_ms",
			Help:    "Duration of cleanup sweeps (ms)",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1ms .. ~8s
		}),
		LocksReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_locks_reclaimed_total",
			Help: "Locks of dead or orphaned instances released by cleanup",
		}),
		LocksRetained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_locks_retained_total",
			Help: "Locks of dead instances kept because their trigger still exists",
		}),
		NodesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_nodes_removed_total",
			Help: "Membership records of dead instances removed by cleanup",
		}),
		LockAcquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lock_acquire_total",
				Help: "Lock acquisition attempts by lock kind and result",
			},
			[]string{"kind", "result"},
		),
		OpLatencyMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lock_op_latency_ms",
				Help:    "Latency of lock operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms .. ~2048ms
			},
			[]string{"op"},
		),
		TriggerFiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_trigger_fires_total",
				Help: "Trigger firings by result",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.CheckinTotal,
			m.CleanupRunsTotal,
			m.CleanupDurationMS,
			m.LocksReclaimed,
			m.LocksRetained,
			m.NodesRemoved,
			m.LockAcquireTotal,
			m.OpLatencyMS,
			m.TriggerFiresTotal,
		)
	}

	return m
}

// Checkin counts a check-in attempt
func (m *Metrics) Checkin(result string) {
	if m == nil {
		return
	}
	m.CheckinTotal.WithLabelValues(result).Inc()
}

// CleanupRun counts a cleanup sweep and its duration
func (m *Metrics) CleanupRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CleanupRunsTotal.WithLabelValues(result).Inc()
	m.CleanupDurationMS.Observe(float64(d.Milliseconds()))
}

// LockReclaimed counts a lock released by cleanup
func (m *Metrics) LockReclaimed() {
	if m == nil {
		return
	}
	m.LocksReclaimed.Inc()
}

// LockRetained counts a dead instance's lock kept because its trigger exists
func (m *Metrics) LockRetained() {
	if m == nil {
		return
	}
	m.LocksRetained.Inc()
}

// NodeRemoved counts a removed membership record
func (m *Metrics) NodeRemoved() {
	if m == nil {
		return
	}
	m.NodesRemoved.Inc()
}

// LockAcquire counts a lock acquisition attempt
func (m *Metrics) LockAcquire(kind, result string) {
	if m == nil {
		return
	}
	m.LockAcquireTotal.WithLabelValues(kind, result).Inc()
}

// ObserveOp records the latency of a lock operation started at start
func (m *Metrics) ObserveOp(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OpLatencyMS.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
}

// TriggerFired counts a trigger firing
func (m *Metrics) TriggerFired(result string) {
	if m == nil {
		return
	}
	m.TriggerFiresTotal.WithLabelValues(result).Inc()
}
