package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger represents a cron rule that fires a job
type Trigger struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	KeyGroup         string             `json:"key_group" bson:"key_group"`
	KeyName          string             `json:"key_name" bson:"key_name"`
	JobGroup         string             `json:"job_group" bson:"job_group"`
	JobName          string             `json:"job_name" bson:"job_name"`
	CronExpression   string             `json:"cron_expression" bson:"cron_expression"`
	Enabled          bool               `json:"enabled" bson:"enabled"`
	NextFireTime     time.Time          `json:"next_fire_time,omitempty" bson:"next_fire_time,omitempty"`
	PreviousFireTime time.Time          `json:"previous_fire_time,omitempty" bson:"previous_fire_time,omitempty"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
}

// Key returns the trigger's key
func (t *Trigger) Key() Key {
	return Key{Group: t.KeyGroup, Name: t.KeyName}
}

// JobKey returns the key of the job fired by the trigger
func (t *Trigger) JobKey() Key {
	return Key{Group: t.JobGroup, Name: t.JobName}
}

// Validate checks the trigger and fills in defaults relative to now
func (t *Trigger) Validate(now time.Time) error {
	if t.KeyName == "" {
		return errors.New("trigger name is required")
	}
	if t.JobName == "" {
		return errors.New("job name is required")
	}
	if t.KeyGroup == "" {
		t.KeyGroup = DefaultGroup
	}
	if t.JobGroup == "" {
		t.JobGroup = DefaultGroup
	}

	if t.CronExpression == "" {
		return errors.New("cron expression is required")
	}
	if _, err := cronParser.Parse(t.CronExpression); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if t.NextFireTime.IsZero() {
		next, err := t.NextFireAfter(now)
		if err != nil {
			return err
		}
		t.NextFireTime = next
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	return nil
}

// NextFireAfter returns the first fire time of the trigger strictly after from
func (t *Trigger) NextFireAfter(from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(t.CronExpression)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule.Next(from).UTC(), nil
}

// DefaultGroup is used when a key is created without a group
const DefaultGroup = "DEFAULT"
