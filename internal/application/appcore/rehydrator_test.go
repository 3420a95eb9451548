package appcore_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
	"github.com/lllypuk/sagaflow/internal/domain/event"
	"github.com/lllypuk/sagaflow/internal/infrastructure/eventstore"
	"github.com/lllypuk/sagaflow/internal/infrastructure/snapshotstore"
)

// counterEvent marks one increment of a counter aggregate.
type counterEvent struct {
	event.BaseEvent
}

func newCounterEvent(aggregateID string) *counterEvent {
	metadata := event.NewMetadata("user-1", "corr-1", "")
	return &counterEvent{
		BaseEvent: event.NewBaseEvent("CounterIncremented", aggregateID, "Counter", 0, metadata),
	}
}

// counterState is a minimal rehydratable aggregate for replay tests.
// Each CounterIncremented event adds one to the total.
type counterState struct {
	Total int `json:"total"`

	eventsApplied int
	snapshotUsed  bool
}

func (s *counterState) ApplySnapshot(snapshot appcore.Snapshot) error {
	if err := json.Unmarshal(snapshot.Data, s); err != nil {
		return err
	}
	s.snapshotUsed = true
	return nil
}

func (s *counterState) ApplyEvent(e event.DomainEvent) error {
	if e.EventType() != "CounterIncremented" {
		return fmt.Errorf("unexpected event type %s", e.EventType())
	}
	s.Total++
	s.eventsApplied++
	return nil
}

func setupRehydrator(t *testing.T) (*appcore.Rehydrator, *eventstore.InMemoryEventStore, *snapshotstore.InMemorySnapshotStore) {
	t.Helper()

	events := eventstore.NewInMemoryEventStore()
	snapshots := snapshotstore.NewInMemorySnapshotStore()
	return appcore.NewRehydrator(events, snapshots), events, snapshots
}

func appendIncrements(t *testing.T, store *eventstore.InMemoryEventStore, aggregateID string, expectedVersion, count int) {
	t.Helper()

	evts := make([]event.DomainEvent, 0, count)
	for i := 0; i < count; i++ {
		evts = append(evts, newCounterEvent(aggregateID))
	}

	result, err := store.AppendEvents(context.Background(), aggregateID, evts, expectedVersion)
	require.NoError(t, err)
	require.True(t, result.Success)
}

func saveCounterSnapshot(t *testing.T, store *snapshotstore.InMemorySnapshotStore, aggregateID string, version, total int) {
	t.Helper()

	data, err := json.Marshal(counterState{Total: total})
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(context.Background(), appcore.Snapshot{
		AggregateID: aggregateID,
		Version:     version,
		Data:        data,
		Type:        "Counter",
		Timestamp:   time.Now().UTC(),
	}))
}

func TestRehydrator_FullReplayWithoutSnapshot(t *testing.T) {
	rehydrator, events, _ := setupRehydrator(t)

	appendIncrements(t, events, "counter-1", 0, 3)

	var state counterState
	version, err := rehydrator.Load(context.Background(), "counter-1", &state)

	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Equal(t, 3, state.Total)
	assert.Equal(t, 3, state.eventsApplied)
	assert.False(t, state.snapshotUsed)
}

func TestRehydrator_SnapshotBoundsReplay(t *testing.T) {
	rehydrator, events, snapshots := setupRehydrator(t)

	appendIncrements(t, events, "counter-1", 0, 3)
	saveCounterSnapshot(t, snapshots, "counter-1", 2, 2)

	var state counterState
	version, err := rehydrator.Load(context.Background(), "counter-1", &state)

	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Equal(t, 3, state.Total)
	// Only the event after the snapshot is replayed.
	assert.Equal(t, 1, state.eventsApplied)
	assert.True(t, state.snapshotUsed)
}

func TestRehydrator_SnapshotAtHeadReplaysNothing(t *testing.T) {
	rehydrator, events, snapshots := setupRehydrator(t)

	appendIncrements(t, events, "counter-1", 0, 1)
	saveCounterSnapshot(t, snapshots, "counter-1", 1, 1)

	var state counterState
	version, err := rehydrator.Load(context.Background(), "counter-1", &state)

	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, 1, state.Total)
	assert.Equal(t, 0, state.eventsApplied)
}

func TestRehydrator_UnknownAggregate(t *testing.T) {
	rehydrator, _, _ := setupRehydrator(t)

	var state counterState
	_, err := rehydrator.Load(context.Background(), "missing", &state)

	require.Error(t, err)
	assert.ErrorIs(t, err, appcore.ErrAggregateNotFound)
}
