package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dandantas/cronlease/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TriggerRepository handles the trigger catalog
type TriggerRepository struct {
	collection *mongo.Collection
}

// NewTriggerRepository creates a new trigger repository
func NewTriggerRepository(db *MongoDB) *TriggerRepository {
	return &TriggerRepository{
		collection: db.GetCollection(CollectionTriggers),
	}
}

// Create inserts a new trigger
func (r *TriggerRepository) Create(ctx context.Context, trigger *model.Trigger) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Ensure ID is generated if not set
	if trigger.ID.IsZero() {
		trigger.ID = primitive.NewObjectID()
	}

	_, err := r.collection.InsertOne(ctxTimeout, trigger)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrTriggerExists, trigger.Key())
		}
		return fmt.Errorf("failed to create trigger: %w", err)
	}

	return nil
}

// Exists reports whether a trigger with the key is still in the catalog
func (r *TriggerRepository) Exists(ctx context.Context, key model.Key) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := r.collection.CountDocuments(ctxTimeout, keyFilter(key), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to look up trigger: %w", err)
	}

	return count > 0, nil
}

// Get retrieves a trigger by key
func (r *TriggerRepository) Get(ctx context.Context, key model.Key) (*model.Trigger, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var trigger model.Trigger
	err := r.collection.FindOne(ctxTimeout, keyFilter(key)).Decode(&trigger)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTriggerNotFound
		}
		return nil, fmt.Errorf("failed to get trigger: %w", err)
	}

	return &trigger, nil
}

// List returns all triggers sorted by key
func (r *TriggerRepository) List(ctx context.Context) ([]model.Trigger, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "key_group", Value: 1}, {Key: "key_name", Value: 1}})
	cursor, err := r.collection.Find(ctxTimeout, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var triggers []model.Trigger
	if err := cursor.All(ctxTimeout, &triggers); err != nil {
		return nil, fmt.Errorf("failed to decode triggers: %w", err)
	}

	return triggers, nil
}

// Delete removes a trigger from the catalog
func (r *TriggerRepository) Delete(ctx context.Context, key model.Key) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.collection.DeleteOne(ctxTimeout, keyFilter(key))
	if err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrTriggerNotFound
	}

	return nil
}

// FindDue retrieves enabled triggers whose next fire time is not after now
func (r *TriggerRepository) FindDue(ctx context.Context, now time.Time) ([]model.Trigger, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"enabled": true,
		"next_fire_time": bson.M{
			"$lte": now,
		},
	}

	cursor, err := r.collection.Find(ctxTimeout, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find due triggers: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var triggers []model.Trigger
	if err := cursor.All(ctxTimeout, &triggers); err != nil {
		return nil, fmt.Errorf("failed to decode due triggers: %w", err)
	}

	return triggers, nil
}

// UpdateFireTimes records a firing and the next fire time of a trigger
func (r *TriggerRepository) UpdateFireTimes(ctx context.Context, key model.Key, previous, next time.Time) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"previous_fire_time": previous,
			"next_fire_time":     next,
		},
	}

	result, err := r.collection.UpdateOne(ctxTimeout, keyFilter(key), update)
	if err != nil {
		return fmt.Errorf("failed to update fire times: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrTriggerNotFound
	}

	return nil
}

func keyFilter(key model.Key) bson.M {
	return bson.M{
		"key_group": key.Group,
		"key_name":  key.Name,
	}
}
