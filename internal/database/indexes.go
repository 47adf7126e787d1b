package database

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes creates all necessary indexes for the collections.
// The unique indexes on locks and schedulers are what make lock insertion
// and check-in upserts safe across instances.
func CreateIndexes(ctx context.Context, db *MongoDB) error {
	slog.Info("Creating MongoDB indexes")

	if err := createIndexes(ctx, db, CollectionLocks, lockIndexes()); err != nil {
		return err
	}

	if err := createIndexes(ctx, db, CollectionSchedulers, schedulerIndexes()); err != nil {
		return err
	}

	if err := createIndexes(ctx, db, CollectionTriggers, triggerIndexes()); err != nil {
		return err
	}

	slog.Info("Successfully created all MongoDB indexes")
	return nil
}

func lockIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "key_group", Value: 1},
				{Key: "key_name", Value: 1},
				{Key: "lock_type", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_key_lock_type_unique"),
		},
		{
			// Avoids a collection scan when looking up the locks of one instance
			Keys:    bson.D{{Key: "instance_id", Value: 1}},
			Options: options.Index().SetName("idx_instance_id"),
		},
	}
}

func schedulerIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "instance_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_instance_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "scheduler_name", Value: 1}},
			Options: options.Index().SetName("idx_scheduler_name"),
		},
	}
}

func triggerIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "key_group", Value: 1},
				{Key: "key_name", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_key_unique"),
		},
		{
			Keys: bson.D{
				{Key: "enabled", Value: 1},
				{Key: "next_fire_time", Value: 1},
			},
			Options: options.Index().SetName("idx_enabled_next_fire_time"),
		},
	}
}

func createIndexes(ctx context.Context, db *MongoDB, name string, indexes []mongo.IndexModel) error {
	collection := db.GetCollection(name)

	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateMany(ctxTimeout, indexes)
	if err != nil {
		return err
	}

	slog.Info("Created indexes", "collection", name)
	return nil
}
