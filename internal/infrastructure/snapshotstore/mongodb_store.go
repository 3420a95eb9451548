// Package snapshotstore persists point-in-time aggregate state used to
// bound event-replay cost during reconstruction.
package snapshotstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
)

const snapshotsCollection = "snapshots"

// snapshotDocument is the MongoDB representation of a snapshot. Soft
// deletion keeps the record with a deleted marker instead of purging it.
type snapshotDocument struct {
	AggregateID string            `bson:"aggregate_id"`
	Version     int               `bson:"version"`
	Data        []byte            `bson:"data"`
	Type        string            `bson:"type,omitempty"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	Timestamp   time.Time         `bson:"timestamp"`
	Deleted     bool              `bson:"deleted"`
	DeletedAt   *time.Time        `bson:"deleted_at,omitempty"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

// MongoSnapshotStore реализует appcore.SnapshotStore с использованием MongoDB
type MongoSnapshotStore struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// Option configures MongoSnapshotStore.
type Option func(*MongoSnapshotStore)

// WithLogger sets the logger for the snapshot store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MongoSnapshotStore) {
		s.logger = logger
	}
}

// NewMongoSnapshotStore создает новый MongoDB Snapshot Store
func NewMongoSnapshotStore(db *mongo.Database, opts ...Option) *MongoSnapshotStore {
	s := &MongoSnapshotStore{
		collection: db.Collection(snapshotsCollection),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// GetSnapshot возвращает снапшот заданной версии или последний, если
// версия не указана. Мягко удаленные снапшоты не возвращаются.
func (s *MongoSnapshotStore) GetSnapshot(
	ctx context.Context,
	aggregateID string,
	version *int,
) (appcore.Snapshot, error) {
	filter := bson.M{
		"aggregate_id": aggregateID,
		"deleted":      false,
	}

	opts := options.FindOne()
	if version != nil {
		filter["version"] = *version
	} else {
		opts = opts.SetSort(bson.D{{Key: "version", Value: -1}})
	}

	var doc snapshotDocument
	err := s.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return appcore.Snapshot{}, appcore.ErrSnapshotNotFound
		}
		return appcore.Snapshot{}, fmt.Errorf("failed to find snapshot: %w", err)
	}

	return toSnapshot(doc), nil
}

// SaveSnapshot выполняет upsert по ключу (aggregate_id, version)
func (s *MongoSnapshotStore) SaveSnapshot(ctx context.Context, snapshot appcore.Snapshot) error {
	if snapshot.AggregateID == "" {
		return errors.New("snapshot aggregate id is required")
	}
	if snapshot.Version < 1 {
		return appcore.ErrInvalidVersion
	}

	timestamp := snapshot.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	filter := bson.M{
		"aggregate_id": snapshot.AggregateID,
		"version":      snapshot.Version,
	}
	update := bson.M{
		"$set": bson.M{
			"data":       snapshot.Data,
			"type":       snapshot.Type,
			"metadata":   snapshot.Metadata,
			"timestamp":  timestamp,
			"deleted":    false,
			"deleted_at": nil,
			"updated_at": time.Now().UTC(),
		},
	}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to save snapshot",
			slog.String("aggregate_id", snapshot.AggregateID),
			slog.Int("version", snapshot.Version),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// DeleteSnapshot помечает снапшоты агрегата удаленными (soft delete).
// При указанной версии помечается только она.
func (s *MongoSnapshotStore) DeleteSnapshot(
	ctx context.Context,
	aggregateID string,
	version *int,
) error {
	filter := bson.M{
		"aggregate_id": aggregateID,
		"deleted":      false,
	}
	if version != nil {
		filter["version"] = *version
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"deleted":    true,
			"deleted_at": now,
			"updated_at": now,
		},
	}

	result, err := s.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	if result.MatchedCount == 0 {
		return appcore.ErrSnapshotNotFound
	}

	return nil
}

func toSnapshot(doc snapshotDocument) appcore.Snapshot {
	return appcore.Snapshot{
		AggregateID: doc.AggregateID,
		Version:     doc.Version,
		Data:        doc.Data,
		Type:        doc.Type,
		Metadata:    doc.Metadata,
		Timestamp:   doc.Timestamp,
	}
}
