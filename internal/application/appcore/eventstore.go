package appcore

import (
	"context"
	"time"

	"github.com/lllypuk/sagaflow/internal/domain/event"
)

// AppendResult is the outcome of an append to the event log. Concurrency
// conflicts are reported through the result (Success=false, Err set), not
// through the error return, so callers can re-read and retry without a
// try/catch around every append. The error return is reserved for storage
// failures.
type AppendResult struct {
	Success     bool
	NewVersion  int
	EventsCount int
	Err         error
}

// StoreStatistics describes the contents of the event log, optionally
// scoped to one aggregate.
type StoreStatistics struct {
	TotalEvents    int64
	AggregateCount int64
	SnapshotCount  int64
	// StorageSizeBytes is an estimate based on serialized document sizes.
	StorageSizeBytes int64
	ByType           map[string]int64
	ByAggregate      map[string]int64
}

// EventStore defines the interface for the durable, per-aggregate,
// strictly-ordered event log. The interface is declared here (on the
// consumer side - application layer), not in infrastructure, following
// idiomatic Go approach.
type EventStore interface {
	// AppendEvents persists events for an aggregate as one atomic batch.
	// The store compares the aggregate's current version against
	// expectedVersion (0 for a new aggregate); on mismatch it returns a
	// failed AppendResult wrapping ErrConcurrencyConflict and writes
	// nothing. On success every event is assigned a strictly increasing
	// version starting at expectedVersion+1. There is no automatic retry.
	AppendEvents(
		ctx context.Context,
		aggregateID string,
		events []event.DomainEvent,
		expectedVersion int,
	) (AppendResult, error)

	// GetEvents returns the aggregate's events ascending by version.
	// fromVersion and toVersion are inclusive bounds; 0 means unbounded.
	// An unknown aggregate or an empty range yields an empty slice.
	GetEvents(ctx context.Context, aggregateID string, fromVersion, toVersion int) ([]event.DomainEvent, error)

	// GetEventStream returns the same data as GetEvents plus stream
	// metadata (total count, HasMore).
	GetEventStream(ctx context.Context, aggregateID string, fromVersion, toVersion int) (event.Stream, error)

	// GetAllEvents returns events across all aggregates ascending by
	// timestamp. Used for projections and diagnostics, not for aggregate
	// reconstruction. Zero times mean unbounded; limit <= 0 means no limit.
	GetAllEvents(ctx context.Context, fromTime, toTime time.Time, limit int) ([]event.DomainEvent, error)

	// GetCurrentVersion returns the aggregate's max version, 0 if the
	// aggregate has no events.
	GetCurrentVersion(ctx context.Context, aggregateID string) (int, error)

	// Exists reports whether the aggregate has at least one event.
	Exists(ctx context.Context, aggregateID string) (bool, error)

	// GetStatistics returns store statistics, scoped to one aggregate
	// when aggregateID is non-empty.
	GetStatistics(ctx context.Context, aggregateID string) (StoreStatistics, error)
}
