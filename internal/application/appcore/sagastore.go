package appcore

import (
	"context"
	"time"

	"github.com/lllypuk/sagaflow/internal/domain/saga"
)

// SagaFilter narrows a saga snapshot query. A nil Status matches all
// statuses.
type SagaFilter struct {
	Status *saga.Status
	Offset int
	Limit  int
}

// SagaPage is one page of a saga snapshot query result.
type SagaPage struct {
	Items  []saga.Snapshot
	Total  int64
	Offset int
	Limit  int
}

// SagaStateStore persists saga execution state for crash recovery,
// keyed by sagaID. Structurally parallel to SnapshotStore.
type SagaStateStore interface {
	// Save upserts the snapshot by its SagaID.
	Save(ctx context.Context, snapshot saga.Snapshot) error

	// GetByID returns the last persisted snapshot for the saga.
	// Returns ErrSagaNotFound when none exists.
	GetByID(ctx context.Context, sagaID string) (saga.Snapshot, error)

	// Query returns a status-filtered page of snapshots. The recovery
	// scan uses it to find all sagas in FAILED status.
	Query(ctx context.Context, filter SagaFilter) (SagaPage, error)

	// Cleanup removes snapshots older than before and returns the count
	// removed.
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}
