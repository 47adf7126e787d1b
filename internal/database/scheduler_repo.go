package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SchedulerRepository handles cluster membership records
type SchedulerRepository struct {
	collection    *mongo.Collection
	clock         clock.Clock
	schedulerName string
	instanceID    string
	lease         time.Duration
}

// NewSchedulerRepository creates a membership repository for this instance.
// lease is stored with every check-in and tells peers how long to wait
// before treating this instance as defunct.
func NewSchedulerRepository(db *MongoDB, clk clock.Clock, schedulerName, instanceID string, lease time.Duration) *SchedulerRepository {
	return &SchedulerRepository{
		collection:    db.GetCollection(CollectionSchedulers),
		clock:         clk,
		schedulerName: schedulerName,
		instanceID:    instanceID,
		lease:         lease,
	}
}

// SchedulerName returns the cluster name of this instance
func (r *SchedulerRepository) SchedulerName() string {
	return r.schedulerName
}

// InstanceID returns the id of this instance
func (r *SchedulerRepository) InstanceID() string {
	return r.instanceID
}

// CheckIn upserts this instance's record with the current time, extending its lease
func (r *SchedulerRepository) CheckIn(ctx context.Context) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	checkinTime := r.clock.Millis()

	update := bson.M{
		"$set": bson.M{
			"scheduler_name":    r.schedulerName,
			"instance_id":       r.instanceID,
			"last_checkin_time": checkinTime,
			"checkin_interval":  r.lease.Milliseconds(),
		},
	}

	_, err := r.collection.UpdateOne(ctxTimeout,
		bson.M{"instance_id": r.instanceID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to check in: %w", err)
	}

	slog.Debug("Checked in",
		"scheduler_name", r.schedulerName,
		"instance_id", r.instanceID,
		"checkin_time", checkinTime,
	)
	return nil
}

// FindAll returns every membership record
func (r *SchedulerRepository) FindAll(ctx context.Context) ([]model.Scheduler, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.collection.Find(ctxTimeout, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list schedulers: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var schedulers []model.Scheduler
	if err := cursor.All(ctxTimeout, &schedulers); err != nil {
		return nil, fmt.Errorf("failed to decode schedulers: %w", err)
	}

	return schedulers, nil
}

// FindInstance returns the record of instanceID, or nil if there is none
func (r *SchedulerRepository) FindInstance(ctx context.Context, instanceID string) (*model.Scheduler, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var scheduler model.Scheduler
	err := r.collection.FindOne(ctxTimeout, bson.M{"instance_id": instanceID}).Decode(&scheduler)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scheduler: %w", err)
	}

	return &scheduler, nil
}

// Remove deletes the record of instanceID only if its last check-in time still
// equals lastCheckinTime. A node that checked in after being read as dead is kept.
func (r *SchedulerRepository) Remove(ctx context.Context, instanceID string, lastCheckinTime int64) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"instance_id":       instanceID,
		"last_checkin_time": lastCheckinTime,
	}

	result, err := r.collection.DeleteOne(ctxTimeout, filter)
	if err != nil {
		return false, fmt.Errorf("failed to remove scheduler: %w", err)
	}

	return result.DeletedCount == 1, nil
}

// IsSelf reports whether the record belongs to this instance
func (r *SchedulerRepository) IsSelf(s model.Scheduler) bool {
	return s.InstanceID == r.instanceID
}
