package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerIsDefunctThreshold(t *testing.T) {
	s := Scheduler{InstanceID: "n1", LastCheckinTime: 1000, CheckinInterval: 500}

	assert.False(t, s.IsDefunct(1000))
	assert.False(t, s.IsDefunct(1500), "exactly at the lease boundary the node is alive")
	assert.True(t, s.IsDefunct(1501))
	assert.Equal(t, int64(1500), s.LeaseExpiresAt())
}

func TestLockKey(t *testing.T) {
	at := time.UnixMilli(0).UTC()
	l := NewLock(LockTypeTrigger, NewKey("G", "t1"), "n1", at)

	assert.False(t, l.ID.IsZero())
	assert.Equal(t, NewKey("G", "t1"), l.Key())
	assert.Equal(t, "G.t1", l.Key().String())
	assert.Contains(t, l.String(), "instance_id=n1")
}

func TestTriggerValidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 30, 0, time.UTC)

	tr := &Trigger{KeyName: "t1", JobName: "report", CronExpression: "*/5 * * * *"}
	require.NoError(t, tr.Validate(now))

	assert.Equal(t, DefaultGroup, tr.KeyGroup)
	assert.Equal(t, DefaultGroup, tr.JobGroup)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC), tr.NextFireTime)
	assert.Equal(t, now, tr.CreatedAt)
	assert.Equal(t, NewKey(DefaultGroup, "report"), tr.JobKey())
}

func TestTriggerValidateErrors(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		trigger Trigger
		wantErr string
	}{
		{"missing name", Trigger{JobName: "j", CronExpression: "* * * * *"}, "trigger name is required"},
		{"missing job", Trigger{KeyName: "t", CronExpression: "* * * * *"}, "job name is required"},
		{"missing cron", Trigger{KeyName: "t", JobName: "j"}, "cron expression is required"},
		{"bad cron", Trigger{KeyName: "t", JobName: "j", CronExpression: "every minute"}, "invalid cron expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.Validate(now)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
