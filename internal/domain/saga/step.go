package saga

import (
	"context"
	"time"
)

// StepStatus represents the state of a single saga step.
type StepStatus string

// Saga step statuses.
const (
	StepStatusPending     StepStatus = "PENDING"
	StepStatusRunning     StepStatus = "RUNNING"
	StepStatusCompleted   StepStatus = "COMPLETED"
	StepStatusFailed      StepStatus = "FAILED"
	StepStatusCompensated StepStatus = "COMPENSATED"
)

// Step is the externally visible progress of one saga step.
// The orchestration engine never inspects step internals beyond this.
type Step struct {
	Name       string
	Status     StepStatus
	ExecutedAt *time.Time
}

// StepFunc is the business logic of a single step. It receives the saga's
// shared context data and may read and mutate it.
type StepFunc func(ctx context.Context, data *ContextData) error

// StepDefinition declares one step of an ordered saga: its forward action
// and an optional compensating action applied in reverse order after a
// later step fails.
type StepDefinition struct {
	Name       string
	Execute    StepFunc
	Compensate StepFunc
}
