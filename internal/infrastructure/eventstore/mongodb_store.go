package eventstore

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
	"github.com/lllypuk/sagaflow/internal/domain/event"
)

// Collection names used by the event-sourcing storage layer.
const (
	eventsCollection    = "events"
	snapshotsCollection = "snapshots"
)

// MongoEventStore реализует appcore.EventStore с использованием MongoDB
type MongoEventStore struct {
	client     *mongo.Client
	database   *mongo.Database
	collection *mongo.Collection
	serializer *EventSerializer
	logger     *slog.Logger
}

// Option configures MongoEventStore.
type Option func(*MongoEventStore)

// WithLogger sets the logger for event store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MongoEventStore) {
		s.logger = logger
	}
}

// NewMongoEventStore создает новый MongoDB Event Store
func NewMongoEventStore(client *mongo.Client, databaseName string, opts ...Option) *MongoEventStore {
	database := client.Database(databaseName)
	collection := database.Collection(eventsCollection)

	s := &MongoEventStore{
		client:     client,
		database:   database,
		collection: collection,
		serializer: NewEventSerializer(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AppendEvents сохраняет события для агрегата с оптимистичной блокировкой.
// Конфликт версий возвращается в результате, а не как ошибка; ошибка
// зарезервирована для отказов хранилища.
func (s *MongoEventStore) AppendEvents(
	ctx context.Context,
	aggregateID string,
	events []event.DomainEvent,
	expectedVersion int,
) (appcore.AppendResult, error) {
	if len(events) == 0 {
		return appcore.AppendResult{}, appcore.ErrNoEvents
	}
	if expectedVersion < 0 {
		return appcore.AppendResult{}, appcore.ErrInvalidVersion
	}

	session, err := s.client.StartSession()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to start MongoDB session for event store",
			slog.String("aggregate_id", aggregateID),
			slog.String("error", err.Error()),
		)
		return appcore.AppendResult{}, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	newVersion := expectedVersion + len(events)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		// 1. Проверяем текущую версию (оптимистичная блокировка)
		currentVersion, errVersion := s.GetCurrentVersion(txCtx, aggregateID)
		if errVersion != nil {
			return nil, errVersion
		}

		if currentVersion != expectedVersion {
			s.logger.WarnContext(ctx, "concurrency conflict in event store",
				slog.String("aggregate_id", aggregateID),
				slog.Int("expected_version", expectedVersion),
				slog.Int("current_version", currentVersion),
			)
			return nil, appcore.ErrConcurrencyConflict
		}

		// 2. Сериализуем события, присваивая версии expectedVersion+1..
		documents, errSerialize := s.serializer.SerializeBatch(events, expectedVersion+1)
		if errSerialize != nil {
			return nil, errSerialize
		}

		docs := make([]any, len(documents))
		for i, doc := range documents {
			docs[i] = doc
		}

		// 3. Вставляем события одним пакетом
		_, errInsert := s.collection.InsertMany(txCtx, docs)
		if errInsert != nil {
			// Нарушение уникального индекса (aggregate_id, version) -
			// конкурирующая запись успела первой
			if mongo.IsDuplicateKeyError(errInsert) {
				return nil, appcore.ErrConcurrencyConflict
			}
			return nil, fmt.Errorf("failed to insert events: %w", errInsert)
		}

		return nil, nil //nolint:nilnil // Transaction success returns nil for both values
	})

	if err != nil {
		if errors.Is(err, appcore.ErrConcurrencyConflict) {
			return appcore.AppendResult{Success: false, Err: appcore.ErrConcurrencyConflict}, nil
		}

		s.logger.ErrorContext(ctx, "event store transaction failed",
			slog.String("aggregate_id", aggregateID),
			slog.Int("events_count", len(events)),
			slog.String("error", err.Error()),
		)
		return appcore.AppendResult{}, err
	}

	return appcore.AppendResult{
		Success:     true,
		NewVersion:  newVersion,
		EventsCount: len(events),
	}, nil
}

// GetEvents загружает события агрегата в порядке возрастания версий.
// Границы fromVersion и toVersion включительны, 0 означает отсутствие границы.
func (s *MongoEventStore) GetEvents(
	ctx context.Context,
	aggregateID string,
	fromVersion, toVersion int,
) ([]event.DomainEvent, error) {
	filter := bson.M{"aggregate_id": aggregateID}
	if versionFilter := versionRange(fromVersion, toVersion); versionFilter != nil {
		filter["version"] = versionFilter
	}

	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to find events in event store",
			slog.String("aggregate_id", aggregateID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*EventDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	return s.serializer.DeserializeMany(docs)
}

// GetEventStream возвращает события вместе с метаданными потока
func (s *MongoEventStore) GetEventStream(
	ctx context.Context,
	aggregateID string,
	fromVersion, toVersion int,
) (event.Stream, error) {
	events, err := s.GetEvents(ctx, aggregateID, fromVersion, toVersion)
	if err != nil {
		return event.Stream{}, err
	}

	currentVersion, err := s.GetCurrentVersion(ctx, aggregateID)
	if err != nil {
		return event.Stream{}, err
	}

	stream := event.Stream{
		AggregateID: aggregateID,
		Events:      events,
		FromVersion: fromVersion,
		ToVersion:   toVersion,
		TotalEvents: len(events),
	}

	switch {
	case len(events) > 0:
		stream.HasMore = events[len(events)-1].Version() < currentVersion
	case toVersion > 0:
		// Пустая страница: события после верхней границы всё ещё существуют.
		stream.HasMore = toVersion < currentVersion
	}

	return stream, nil
}

// GetAllEvents возвращает события всех агрегатов в порядке возрастания
// времени. Используется для проекций и диагностики.
func (s *MongoEventStore) GetAllEvents(
	ctx context.Context,
	fromTime, toTime time.Time,
	limit int,
) ([]event.DomainEvent, error) {
	filter := bson.M{}
	timeFilter := bson.M{}
	if !fromTime.IsZero() {
		timeFilter["$gte"] = fromTime
	}
	if !toTime.IsZero() {
		timeFilter["$lte"] = toTime
	}
	if len(timeFilter) > 0 {
		filter["occurred_at"] = timeFilter
	}

	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*EventDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	return s.serializer.DeserializeMany(docs)
}

// GetCurrentVersion возвращает текущую версию агрегата
func (s *MongoEventStore) GetCurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	filter := bson.M{"aggregate_id": aggregateID}
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})

	var doc EventDocument
	err := s.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil // Нет событий еще
		}
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	return doc.Version, nil
}

// Exists проверяет наличие хотя бы одного события агрегата
func (s *MongoEventStore) Exists(ctx context.Context, aggregateID string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"aggregate_id": aggregateID},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check aggregate existence: %w", err)
	}

	return count > 0, nil
}

// GetStatistics возвращает статистику хранилища, при непустом aggregateID -
// в разрезе одного агрегата.
func (s *MongoEventStore) GetStatistics(
	ctx context.Context,
	aggregateID string,
) (appcore.StoreStatistics, error) {
	match := bson.M{}
	if aggregateID != "" {
		match["aggregate_id"] = aggregateID
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":        nil,
			"total":      bson.M{"$sum": 1},
			"size":       bson.M{"$sum": bson.M{"$bsonSize": "$$ROOT"}},
			"aggregates": bson.M{"$addToSet": "$aggregate_id"},
		}}},
	}

	stats := appcore.StoreStatistics{
		ByType:      make(map[string]int64),
		ByAggregate: make(map[string]int64),
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return appcore.StoreStatistics{}, fmt.Errorf("failed to aggregate statistics: %w", err)
	}

	var totals []struct {
		Total      int64    `bson:"total"`
		Size       int64    `bson:"size"`
		Aggregates []string `bson:"aggregates"`
	}
	if err = cursor.All(ctx, &totals); err != nil {
		return appcore.StoreStatistics{}, fmt.Errorf("failed to decode statistics: %w", err)
	}
	if len(totals) > 0 {
		stats.TotalEvents = totals[0].Total
		stats.StorageSizeBytes = totals[0].Size
		stats.AggregateCount = int64(len(totals[0].Aggregates))
	}

	byType, err := s.groupCounts(ctx, match, "$event_type")
	if err != nil {
		return appcore.StoreStatistics{}, err
	}
	stats.ByType = byType

	byAggregate, err := s.groupCounts(ctx, match, "$aggregate_id")
	if err != nil {
		return appcore.StoreStatistics{}, err
	}
	stats.ByAggregate = byAggregate

	snapshotFilter := bson.M{}
	if aggregateID != "" {
		snapshotFilter["aggregate_id"] = aggregateID
	}
	snapshotCount, err := s.database.Collection(snapshotsCollection).CountDocuments(ctx, snapshotFilter)
	if err != nil {
		return appcore.StoreStatistics{}, fmt.Errorf("failed to count snapshots: %w", err)
	}
	stats.SnapshotCount = snapshotCount

	return stats, nil
}

// groupCounts выполняет группировку количества событий по полю
func (s *MongoEventStore) groupCounts(
	ctx context.Context,
	match bson.M,
	field string,
) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   field,
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to group by %s: %w", field, err)
	}

	var rows []struct {
		ID    string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode grouped counts: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ID] = row.Count
	}

	return counts, nil
}

// versionRange строит фильтр по версии c включительными границами
func versionRange(fromVersion, toVersion int) bson.M {
	versionFilter := bson.M{}
	if fromVersion > 0 {
		versionFilter["$gte"] = fromVersion
	}
	if toVersion > 0 {
		versionFilter["$lte"] = toVersion
	}
	if len(versionFilter) == 0 {
		return nil
	}
	return versionFilter
}
