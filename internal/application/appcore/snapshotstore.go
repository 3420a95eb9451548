package appcore

import (
	"context"
	"time"
)

// Snapshot is a point-in-time serialized aggregate state, used to bound
// event-replay cost during reconstruction. The data payload is opaque to
// the store.
type Snapshot struct {
	AggregateID string
	Version     int
	Data        []byte
	Type        string
	Metadata    map[string]string
	Timestamp   time.Time
}

// SnapshotStore persists aggregate snapshots keyed by (aggregateID,
// version).
type SnapshotStore interface {
	// GetSnapshot returns the snapshot at the given version, or the
	// latest one when version is nil. Soft-deleted snapshots are not
	// returned. Returns ErrSnapshotNotFound when nothing matches.
	GetSnapshot(ctx context.Context, aggregateID string, version *int) (Snapshot, error)

	// SaveSnapshot upserts a snapshot: an existing record at the exact
	// (aggregateID, version) is overwritten, otherwise a new one is
	// created.
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error

	// DeleteSnapshot soft-deletes all snapshots of the aggregate, or only
	// the given version when non-nil. Records are marked deleted, not
	// purged.
	DeleteSnapshot(ctx context.Context, aggregateID string, version *int) error
}
