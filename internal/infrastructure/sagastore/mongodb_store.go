// Package sagastore persists saga execution state for crash recovery.
package sagastore

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
	"github.com/lllypuk/sagaflow/internal/domain/saga"
)

const sagaSnapshotsCollection = "saga_snapshots"

// Pagination defaults for saga queries.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

// sagaDocument is the MongoDB representation of a saga snapshot.
type sagaDocument struct {
	SagaID      string              `bson:"saga_id"`
	Name        string              `bson:"name"`
	AggregateID string              `bson:"aggregate_id,omitempty"`
	Status      saga.Status         `bson:"status"`
	Context     bson.M              `bson:"context"`
	Steps       []saga.StepProgress `bson:"steps"`
	Timestamp   time.Time           `bson:"timestamp"`
	Version     int                 `bson:"version"`
	UpdatedAt   time.Time           `bson:"updated_at"`
}

// MongoSagaStateStore реализует appcore.SagaStateStore с использованием MongoDB
type MongoSagaStateStore struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// Option configures MongoSagaStateStore.
type Option func(*MongoSagaStateStore)

// WithLogger sets the logger for the saga state store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MongoSagaStateStore) {
		s.logger = logger
	}
}

// NewMongoSagaStateStore создает новый MongoDB Saga State Store
func NewMongoSagaStateStore(db *mongo.Database, opts ...Option) *MongoSagaStateStore {
	s := &MongoSagaStateStore{
		collection: db.Collection(sagaSnapshotsCollection),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Save выполняет upsert снапшота по saga_id
func (s *MongoSagaStateStore) Save(ctx context.Context, snapshot saga.Snapshot) error {
	if snapshot.SagaID == "" {
		return errors.New("saga id is required")
	}

	timestamp := snapshot.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	filter := bson.M{"saga_id": snapshot.SagaID}
	update := bson.M{
		"$set": bson.M{
			"name":         snapshot.Name,
			"aggregate_id": snapshot.AggregateID,
			"status":       snapshot.Status,
			"context":      bson.M(snapshot.Context),
			"steps":        snapshot.Steps,
			"timestamp":    timestamp,
			"version":      snapshot.Version,
			"updated_at":   time.Now().UTC(),
		},
	}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to save saga snapshot",
			slog.String("saga_id", snapshot.SagaID),
			slog.String("status", string(snapshot.Status)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to save saga snapshot: %w", err)
	}

	return nil
}

// GetByID возвращает последний снапшот саги
func (s *MongoSagaStateStore) GetByID(ctx context.Context, sagaID string) (saga.Snapshot, error) {
	var doc sagaDocument
	err := s.collection.FindOne(ctx, bson.M{"saga_id": sagaID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return saga.Snapshot{}, appcore.ErrSagaNotFound
		}
		return saga.Snapshot{}, fmt.Errorf("failed to find saga snapshot: %w", err)
	}

	return toSnapshot(doc), nil
}

// Query возвращает страницу снапшотов с фильтром по статусу.
// Сканирование восстановления использует его для поиска саг в статусе FAILED.
func (s *MongoSagaStateStore) Query(ctx context.Context, filter appcore.SagaFilter) (appcore.SagaPage, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	total, err := s.collection.CountDocuments(ctx, query)
	if err != nil {
		return appcore.SagaPage{}, fmt.Errorf("failed to count saga snapshots: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return appcore.SagaPage{}, fmt.Errorf("failed to query saga snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []sagaDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return appcore.SagaPage{}, fmt.Errorf("failed to decode saga snapshots: %w", err)
	}

	items := make([]saga.Snapshot, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toSnapshot(doc))
	}

	return appcore.SagaPage{
		Items:  items,
		Total:  total,
		Offset: filter.Offset,
		Limit:  limit,
	}, nil
}

// Cleanup удаляет снапшоты старше указанной даты и возвращает их количество
func (s *MongoSagaStateStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	filter := bson.M{"timestamp": bson.M{"$lt": before}}

	result, err := s.collection.DeleteMany(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to cleanup saga snapshots",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to cleanup saga snapshots: %w", err)
	}

	if result.DeletedCount > 0 {
		s.logger.InfoContext(ctx, "cleaned up old saga snapshots",
			slog.Int64("deleted", result.DeletedCount),
			slog.Time("before", before),
		)
	}

	return result.DeletedCount, nil
}

func toSnapshot(doc sagaDocument) saga.Snapshot {
	return saga.Snapshot{
		SagaID:      doc.SagaID,
		Name:        doc.Name,
		AggregateID: doc.AggregateID,
		Status:      doc.Status,
		Context:     map[string]any(doc.Context),
		Steps:       doc.Steps,
		Timestamp:   doc.Timestamp,
		Version:     doc.Version,
	}
}
