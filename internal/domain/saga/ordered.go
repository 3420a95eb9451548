package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoSteps is returned when an ordered saga is built without steps.
var ErrNoSteps = errors.New("saga has no steps")

// OrderedSaga is a sequential saga implementation: steps run in
// declaration order, pause and cancellation take effect at step
// boundaries, and compensation replays the compensating actions of
// completed steps in reverse order.
type OrderedSaga struct {
	id          string
	name        string
	aggregateID string
	steps       []StepDefinition

	mu           sync.RWMutex
	status       Status
	progress     []Step
	data         *ContextData
	startIndex   int
	resume       chan struct{}
	cancelReason string
}

// OrderedSagaOption configures an OrderedSaga.
type OrderedSagaOption func(*OrderedSaga)

// WithAggregateID correlates the saga with an aggregate.
func WithAggregateID(aggregateID string) OrderedSagaOption {
	return func(s *OrderedSaga) {
		s.aggregateID = aggregateID
	}
}

// WithInitialContext seeds the saga's business context data.
func WithInitialContext(values map[string]any) OrderedSagaOption {
	return func(s *OrderedSaga) {
		s.data.Merge(values)
	}
}

// NewOrderedSaga creates a saga that executes the given steps in order.
func NewOrderedSaga(id, name string, steps []StepDefinition, opts ...OrderedSagaOption) (*OrderedSaga, error) {
	if id == "" {
		return nil, errors.New("saga id is required")
	}
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}

	progress := make([]Step, len(steps))
	for i, def := range steps {
		progress[i] = Step{Name: def.Name, Status: StepStatusPending}
	}

	s := &OrderedSaga{
		id:       id,
		name:     name,
		steps:    steps,
		status:   StatusNotStarted,
		progress: progress,
		data:     NewContextData(nil),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// SagaID returns the saga instance identifier.
func (s *OrderedSaga) SagaID() string {
	return s.id
}

// Name returns the saga type name.
func (s *OrderedSaga) Name() string {
	return s.name
}

// AggregateID returns the correlated aggregate identifier, if any.
func (s *OrderedSaga) AggregateID() string {
	return s.aggregateID
}

// Status returns the current lifecycle status.
func (s *OrderedSaga) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

// Context returns a copy of the saga's business context data.
func (s *OrderedSaga) Context() map[string]any {
	return s.data.Snapshot()
}

// Steps returns the progress of every step, in order.
func (s *OrderedSaga) Steps() []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Step, len(s.progress))
	copy(out, s.progress)
	return out
}

// Execute runs the remaining steps in order. On a restored saga it picks
// up after the last completed step.
func (s *OrderedSaga) Execute(ctx context.Context, data map[string]any) error {
	s.mu.Lock()
	if err := ValidateTransition(s.status, StatusRunning); err != nil {
		s.mu.Unlock()
		return err
	}
	s.status = StatusRunning
	start := s.startIndex
	s.mu.Unlock()

	s.data.Merge(data)

	for i := start; i < len(s.steps); i++ {
		if err := s.awaitRunnable(ctx); err != nil {
			return err
		}

		s.setStepStatus(i, StepStatusRunning, nil)

		if err := s.steps[i].Execute(ctx, s.data); err != nil {
			now := time.Now().UTC()
			s.setStepStatus(i, StepStatusFailed, &now)
			s.markStopped(StatusFailed)
			return fmt.Errorf("step %q failed: %w", s.steps[i].Name, err)
		}

		now := time.Now().UTC()
		s.setStepStatus(i, StepStatusCompleted, &now)

		s.mu.Lock()
		s.startIndex = i + 1
		s.mu.Unlock()
	}

	// Cancellation may have landed during the last step.
	if err := s.awaitRunnable(ctx); err != nil {
		return err
	}

	s.markStopped(StatusCompleted)
	return nil
}

// Pause suspends execution at the next step boundary.
func (s *OrderedSaga) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateTransition(s.status, StatusPaused); err != nil {
		return err
	}

	s.status = StatusPaused
	s.resume = make(chan struct{})
	return nil
}

// Resume continues a paused execution.
func (s *OrderedSaga) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateTransition(s.status, StatusRunning); err != nil {
		return err
	}

	s.status = StatusRunning
	close(s.resume)
	s.resume = nil
	return nil
}

// Cancel requests a cooperative stop. A step already in flight completes;
// the execution stops at the next step boundary.
func (s *OrderedSaga) Cancel(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateTransition(s.status, StatusCancelled); err != nil {
		return err
	}

	s.status = StatusCancelled
	s.cancelReason = reason
	return nil
}

// Compensate reverses completed steps in reverse order. Only valid on a
// FAILED saga; steps without a compensating action are skipped.
func (s *OrderedSaga) Compensate(ctx context.Context, reason string) error {
	s.mu.Lock()
	if err := ValidateTransition(s.status, StatusCompensated); err != nil {
		s.mu.Unlock()
		return err
	}

	var completed []int
	for i := len(s.progress) - 1; i >= 0; i-- {
		if s.progress[i].Status == StepStatusCompleted {
			completed = append(completed, i)
		}
	}
	s.mu.Unlock()

	for _, i := range completed {
		if s.steps[i].Compensate == nil {
			continue
		}
		if err := s.steps[i].Compensate(ctx, s.data); err != nil {
			return fmt.Errorf("compensation of step %q failed: %w", s.steps[i].Name, err)
		}

		now := time.Now().UTC()
		s.setStepStatus(i, StepStatusCompensated, &now)
	}

	s.mu.Lock()
	s.status = StatusCompensated
	if reason != "" {
		s.cancelReason = reason
	}
	s.mu.Unlock()

	return nil
}

// awaitRunnable blocks while the saga is paused and returns an error when
// the saga was cancelled or the context expired.
func (s *OrderedSaga) awaitRunnable(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.RLock()
		status := s.status
		resume := s.resume
		reason := s.cancelReason
		s.mu.RUnlock()

		switch status {
		case StatusRunning:
			return nil
		case StatusPaused:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-resume:
			}
		case StatusCancelled:
			if reason != "" {
				return fmt.Errorf("%w: %s", ErrExecutionCancelled, reason)
			}
			return ErrExecutionCancelled
		default:
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, StatusRunning)
		}
	}
}

// markStopped moves a running saga to the given final status. A status
// already changed by Cancel wins.
func (s *OrderedSaga) markStopped(target Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusRunning {
		s.status = target
	}
}

func (s *OrderedSaga) setStepStatus(index int, status StepStatus, executedAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[index].Status = status
	if executedAt != nil {
		s.progress[index].ExecutedAt = executedAt
	}
}
