package saga

import (
	"errors"
	"fmt"
)

// Status represents the lifecycle state of a saga execution.
type Status string

// Saga lifecycle statuses.
const (
	StatusNotStarted  Status = "NOT_STARTED"
	StatusRunning     Status = "RUNNING"
	StatusPaused      Status = "PAUSED"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusCompensated Status = "COMPENSATED"
	StatusCancelled   Status = "CANCELLED"
)

// ErrInvalidTransition is returned when a lifecycle operation is invoked
// from a status that does not allow it.
var ErrInvalidTransition = errors.New("invalid saga state transition")

// allowedTransitions is the closed transition table of the saga lifecycle.
// FAILED -> RUNNING is the recovery path and is only taken after the
// persisted snapshot has been re-validated as FAILED.
var allowedTransitions = map[Status][]Status{
	StatusNotStarted: {StatusRunning},
	StatusRunning:    {StatusCompleted, StatusFailed, StatusPaused, StatusCancelled},
	StatusPaused:     {StatusRunning},
	StatusFailed:     {StatusCompensated, StatusRunning},
	// COMPLETED, CANCELLED and COMPENSATED are terminal.
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusRunning, StatusPaused,
		StatusCompleted, StatusFailed, StatusCompensated, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends the execution attempt.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusCompensated:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the transition s -> target is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition (wrapped with both
// statuses) when s -> target is not in the transition table.
func ValidateTransition(s, target Status) error {
	if !s.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, target)
	}
	return nil
}
