// Package saga defines the saga lifecycle state machine and the boundary
// between the orchestration engine and externally supplied business logic.
package saga

import (
	"context"
	"errors"
)

// Execution errors surfaced by saga implementations.
var (
	// ErrExecutionCancelled is returned from Execute when the saga was
	// cancelled at a step boundary.
	ErrExecutionCancelled = errors.New("saga execution cancelled")
)

// Saga is the abstraction the execution engine orchestrates. The step
// business logic is fully external; the engine only drives the lifecycle.
type Saga interface {
	// SagaID returns the unique saga instance identifier.
	SagaID() string

	// Name returns the saga type name, used to restore persisted sagas.
	Name() string

	// Execute runs the saga steps with the given input data. Cancellation
	// is cooperative: implementations check for it at step boundaries.
	Execute(ctx context.Context, data map[string]any) error

	// Pause suspends execution at the next step boundary.
	Pause() error

	// Resume continues a paused execution.
	Resume() error

	// Cancel requests a cooperative stop with the given reason.
	Cancel(reason string) error

	// Compensate reverses the effects of completed steps after a failure.
	Compensate(ctx context.Context, reason string) error

	// Status returns the current lifecycle status.
	Status() Status

	// Context returns a copy of the saga's business context data.
	Context() map[string]any

	// Steps returns the progress of every step, in order.
	Steps() []Step
}
