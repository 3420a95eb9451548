//go:build integration

package eventstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
	"github.com/lllypuk/sagaflow/internal/domain/event"
	"github.com/lllypuk/sagaflow/internal/infrastructure/eventstore"
	"github.com/lllypuk/sagaflow/internal/infrastructure/mongodb"
	"github.com/lllypuk/sagaflow/internal/testutil"
)

func setupMongoEventStore(t *testing.T) *eventstore.MongoEventStore {
	t.Helper()

	client, db := testutil.SetupTestMongoDB(t)
	require.NoError(t, mongodb.CreateAllIndexes(context.Background(), db))

	return eventstore.NewMongoEventStore(client, db.Name())
}

func TestMongoEventStore_AppendAndGet(t *testing.T) {
	store := setupMongoEventStore(t)
	ctx := context.Background()

	events := []event.DomainEvent{
		newTestEvent("agg-1", "Created", 0),
		newTestEvent("agg-1", "Updated", 0),
	}

	result, err := store.AppendEvents(ctx, "agg-1", events, 0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.NewVersion)

	loaded, err := store.GetEvents(ctx, "agg-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 1, loaded[0].Version())
	assert.Equal(t, 2, loaded[1].Version())
	assert.Equal(t, "Created", loaded[0].EventType())
	assert.NotEmpty(t, loaded[0].EventID())
}

func TestMongoEventStore_StaleVersionConflict(t *testing.T) {
	store := setupMongoEventStore(t)
	ctx := context.Background()

	first := []event.DomainEvent{
		newTestEvent("agg-1", "Created", 0),
		newTestEvent("agg-1", "Updated", 0),
		newTestEvent("agg-1", "Updated", 0),
	}

	result, err := store.AppendEvents(ctx, "agg-1", first, 0)
	require.NoError(t, err)
	require.True(t, result.Success)

	// Stale expected version: the aggregate is at version 3.
	stale, err := store.AppendEvents(ctx, "agg-1", []event.DomainEvent{newTestEvent("agg-1", "Updated", 0)}, 2)
	require.NoError(t, err)
	assert.False(t, stale.Success)
	assert.ErrorIs(t, stale.Err, appcore.ErrConcurrencyConflict)

	// No partial writes on conflict.
	version, err := store.GetCurrentVersion(ctx, "agg-1")
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestMongoEventStore_GetEventsUnknownAggregate(t *testing.T) {
	store := setupMongoEventStore(t)

	loaded, err := store.GetEvents(context.Background(), "missing", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestMongoEventStore_GetEventStream(t *testing.T) {
	store := setupMongoEventStore(t)
	ctx := context.Background()

	var events []event.DomainEvent
	for i := 0; i < 5; i++ {
		events = append(events, newTestEvent("agg-1", "Updated", 0))
	}

	result, err := store.AppendEvents(ctx, "agg-1", events, 0)
	require.NoError(t, err)
	require.True(t, result.Success)

	stream, err := store.GetEventStream(ctx, "agg-1", 0, 3)
	require.NoError(t, err)
	assert.Len(t, stream.Events, 3)
	assert.True(t, stream.HasMore)
	assert.Equal(t, 3, stream.ToVersion)

	tail, err := store.GetEventStream(ctx, "agg-1", stream.ToVersion+1, 0)
	require.NoError(t, err)
	assert.Len(t, tail.Events, 2)
	assert.False(t, tail.HasMore)

	// Empty page below the head still signals more events past toVersion.
	empty, err := store.GetEventStream(ctx, "agg-1", 4, 2)
	require.NoError(t, err)
	assert.Empty(t, empty.Events)
	assert.True(t, empty.HasMore)
}

func TestMongoEventStore_ExistsAndStatistics(t *testing.T) {
	store := setupMongoEventStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "agg-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.AppendEvents(ctx, "agg-1", []event.DomainEvent{newTestEvent("agg-1", "Created", 0)}, 0)
	require.NoError(t, err)
	_, err = store.AppendEvents(ctx, "agg-2", []event.DomainEvent{newTestEvent("agg-2", "Created", 0)}, 0)
	require.NoError(t, err)

	exists, err = store.Exists(ctx, "agg-1")
	require.NoError(t, err)
	assert.True(t, exists)

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEvents)
	assert.Equal(t, int64(2), stats.AggregateCount)
	assert.Equal(t, int64(2), stats.ByType["Created"])
}
