package appcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/lllypuk/sagaflow/internal/domain/event"
)

// Rehydratable is an aggregate that can be rebuilt from a snapshot plus
// the events appended after it.
type Rehydratable interface {
	// ApplySnapshot restores state from a serialized snapshot.
	ApplySnapshot(snapshot Snapshot) error

	// ApplyEvent folds one event into the state.
	ApplyEvent(e event.DomainEvent) error
}

// Rehydrator reconstructs aggregate state with bounded replay: latest
// snapshot first, then only the events recorded after it.
type Rehydrator struct {
	events    EventStore
	snapshots SnapshotStore
}

// NewRehydrator creates a Rehydrator over the given stores.
func NewRehydrator(events EventStore, snapshots SnapshotStore) *Rehydrator {
	return &Rehydrator{
		events:    events,
		snapshots: snapshots,
	}
}

// Load rebuilds the aggregate into target and returns the version it was
// rebuilt to. Returns ErrAggregateNotFound when neither a snapshot nor
// events exist.
func (r *Rehydrator) Load(ctx context.Context, aggregateID string, target Rehydratable) (int, error) {
	fromVersion := 1
	version := 0

	snapshot, err := r.snapshots.GetSnapshot(ctx, aggregateID, nil)
	switch {
	case err == nil:
		if applyErr := target.ApplySnapshot(snapshot); applyErr != nil {
			return 0, fmt.Errorf("failed to apply snapshot of %s: %w", aggregateID, applyErr)
		}
		fromVersion = snapshot.Version + 1
		version = snapshot.Version
	case errors.Is(err, ErrSnapshotNotFound):
		// Full replay from version 1.
	default:
		return 0, err
	}

	events, err := r.events.GetEvents(ctx, aggregateID, fromVersion, 0)
	if err != nil {
		return 0, err
	}

	for _, e := range events {
		if applyErr := target.ApplyEvent(e); applyErr != nil {
			return 0, fmt.Errorf("failed to apply event %s at version %d: %w",
				e.EventType(), e.Version(), applyErr)
		}
		version = e.Version()
	}

	if version == 0 {
		return 0, ErrAggregateNotFound
	}

	return version, nil
}
