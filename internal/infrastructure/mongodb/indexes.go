// Package mongodb provides MongoDB infrastructure components including index management.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names as constants for consistency.
const (
	CollectionEvents        = "events"
	CollectionSnapshots     = "snapshots"
	CollectionSagaSnapshots = "saga_snapshots"
)

// IndexDefinition describes a MongoDB index to be created.
type IndexDefinition struct {
	Collection string
	Keys       bson.D
	Options    *options.IndexOptionsBuilder
}

// CreateAllIndexes creates all necessary indexes for the application.
// This function is idempotent - calling it multiple times is safe.
func CreateAllIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := GetAllIndexDefinitions()

	for _, idx := range indexes {
		coll := db.Collection(idx.Collection)
		model := mongo.IndexModel{
			Keys:    idx.Keys,
			Options: idx.Options,
		}

		_, err := coll.Indexes().CreateOne(ctx, model)
		if err != nil {
			return fmt.Errorf("failed to create index on collection %s: %w", idx.Collection, err)
		}
	}

	return nil
}

// GetAllIndexDefinitions returns all index definitions for all collections.
func GetAllIndexDefinitions() []IndexDefinition {
	var indexes []IndexDefinition

	indexes = append(indexes, GetEventIndexes()...)
	indexes = append(indexes, GetSnapshotIndexes()...)
	indexes = append(indexes, GetSagaSnapshotIndexes()...)

	return indexes
}

// GetEventIndexes returns index definitions for the events collection (Event Store).
func GetEventIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Unique index for optimistic locking - prevents duplicate events for same aggregate+version
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "aggregate_id", Value: 1}, {Key: "version", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_events_aggregate_version_unique"),
		},
		{
			// Index for filtering events by type
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "event_type", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options:    options.Index().SetName("idx_events_type_time"),
		},
		{
			// Index for time-ordered global reads
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "occurred_at", Value: 1}},
			Options:    options.Index().SetName("idx_events_occurred_at"),
		},
	}
}

// GetSnapshotIndexes returns index definitions for the aggregate snapshots collection.
func GetSnapshotIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// One snapshot document per aggregate+version, upserted in place
			Collection: CollectionSnapshots,
			Keys:       bson.D{{Key: "aggregate_id", Value: 1}, {Key: "version", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_snapshots_aggregate_version_unique"),
		},
		{
			// Latest-snapshot lookup filters on the soft-delete flag
			Collection: CollectionSnapshots,
			Keys:       bson.D{{Key: "aggregate_id", Value: 1}, {Key: "deleted", Value: 1}, {Key: "version", Value: -1}},
			Options:    options.Index().SetName("idx_snapshots_aggregate_live"),
		},
	}
}

// GetSagaSnapshotIndexes returns index definitions for the saga state collection.
func GetSagaSnapshotIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// One state document per saga, upserted in place
			Collection: CollectionSagaSnapshots,
			Keys:       bson.D{{Key: "saga_id", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_saga_snapshots_saga_id_unique"),
		},
		{
			// Recovery scan filters by status
			Collection: CollectionSagaSnapshots,
			Keys:       bson.D{{Key: "status", Value: 1}, {Key: "timestamp", Value: 1}},
			Options:    options.Index().SetName("idx_saga_snapshots_status_time"),
		},
		{
			// Retention cleanup deletes by timestamp
			Collection: CollectionSagaSnapshots,
			Keys:       bson.D{{Key: "timestamp", Value: 1}},
			Options:    options.Index().SetName("idx_saga_snapshots_timestamp"),
		},
	}
}
