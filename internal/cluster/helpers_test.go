package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/database/memory"
	"github.com/dandantas/cronlease/internal/model"
	"github.com/stretchr/testify/require"
)

const (
	testCluster  = "quartz"
	testLease    = 15 * time.Second
	testTimeout  = 10 * time.Second
	testStartMs  = int64(1_700_000_000_000)
	testInterval = 7500 * time.Millisecond
)

// node is one simulated scheduler instance sharing the store with its peers
type node struct {
	schedulers *memory.SchedulerStore
	locks      *memory.LockStore
	expiry     *ExpiryCalculator
	cleanup    *CleanupTask
}

func newNode(store *memory.Store, clk clock.Clock, name, instanceID string) *node {
	schedulers := store.Schedulers(clk, name, instanceID, testLease)
	locks := store.Locks(clk, instanceID)
	expiry := NewExpiryCalculator(schedulers, clk, testTimeout, testTimeout)
	return &node{
		schedulers: schedulers,
		locks:      locks,
		expiry:     expiry,
		cleanup:    NewCleanupTask(schedulers, locks, store.Triggers(), expiry, nil),
	}
}

func createTrigger(t *testing.T, store *memory.Store, key model.Key) {
	t.Helper()
	trigger := &model.Trigger{
		KeyGroup:       key.Group,
		KeyName:        key.Name,
		JobName:        "job",
		CronExpression: "*/5 * * * *",
		Enabled:        true,
	}
	require.NoError(t, store.Triggers().Create(context.Background(), trigger))
}

func instanceIDs(records []model.Scheduler) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.InstanceID)
	}
	return ids
}

func lockKeys(locks []model.Lock) []string {
	keys := make([]string, 0, len(locks))
	for _, l := range locks {
		keys = append(keys, l.Key().String())
	}
	return keys
}
