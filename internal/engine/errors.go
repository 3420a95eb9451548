package engine

import "errors"

// Sentinel errors returned by engine operations.
var (
	// ErrCapacityExceeded is returned when the running-saga limit is reached.
	// Callers should back off and retry later.
	ErrCapacityExceeded = errors.New("max concurrent sagas limit reached")

	// ErrDuplicateExecution is returned when a saga with the same id is
	// already registered as running.
	ErrDuplicateExecution = errors.New("saga is already executing")

	// ErrEngineClosed is returned for operations on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrNoRestorer is returned by RecoverSaga when no restorer is configured.
	ErrNoRestorer = errors.New("no saga restorer configured")
)
