// Package appcore provides consumer-side storage contracts and shared
// utilities for the event-sourcing and saga subsystems.
package appcore

import "errors"

// Storage-level sentinel errors.
var (
	// ErrAggregateNotFound is returned when the aggregate is not found
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrConcurrencyConflict is returned on version conflict (optimistic locking)
	ErrConcurrencyConflict = errors.New("concurrency conflict detected")

	// ErrInvalidVersion is returned when the version is invalid
	ErrInvalidVersion = errors.New("invalid version")

	// ErrNoEvents is returned when an append is attempted with no events
	ErrNoEvents = errors.New("no events to append")

	// ErrSnapshotNotFound is returned when no snapshot exists for the request
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSagaNotFound is returned when no saga snapshot exists for the id
	ErrSagaNotFound = errors.New("saga not found")
)
