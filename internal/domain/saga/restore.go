package saga

import (
	"errors"
	"fmt"
	"sync"
)

// Restore errors.
var (
	ErrUnknownDefinition = errors.New("unknown saga definition")
	ErrDefinitionExists  = errors.New("saga definition already registered")
)

// Definition declares a saga type by name: the ordered steps an instance
// of that type executes. Definitions make persisted sagas restorable.
type Definition struct {
	Name  string
	Steps []StepDefinition
}

// Restorer rebuilds an executable saga from its persisted snapshot.
type Restorer interface {
	Restore(snapshot Snapshot) (Saga, error)
}

// Registry maps saga type names to their definitions. It is the restore
// counterpart of event-type registries used for event deserialization.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty saga definition registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. Registering the same name twice is an error.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("definition name is required")
	}
	if len(def.Steps) == 0 {
		return ErrNoSteps
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, def.Name)
	}

	r.defs[def.Name] = def
	return nil
}

// Restore rebuilds an OrderedSaga from a snapshot, positioned after the
// last completed step, so that Execute resumes the remaining steps.
func (r *Registry) Restore(snapshot Snapshot) (Saga, error) {
	r.mu.RLock()
	def, exists := r.defs[snapshot.Name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDefinition, snapshot.Name)
	}

	if len(snapshot.Steps) > len(def.Steps) {
		return nil, fmt.Errorf("snapshot of saga %s records %d steps, definition has %d",
			snapshot.SagaID, len(snapshot.Steps), len(def.Steps))
	}

	s, err := NewOrderedSaga(snapshot.SagaID, def.Name, def.Steps,
		WithAggregateID(snapshot.AggregateID),
		WithInitialContext(snapshot.Context),
	)
	if err != nil {
		return nil, err
	}

	for _, p := range snapshot.Steps {
		if p.StepIndex < 0 || p.StepIndex >= len(s.progress) {
			return nil, fmt.Errorf("snapshot of saga %s references step index %d out of range",
				snapshot.SagaID, p.StepIndex)
		}
		s.progress[p.StepIndex].Status = p.Status
		s.progress[p.StepIndex].ExecutedAt = p.ExecutedAt
	}

	// Resume after the last contiguous run of completed steps. An
	// interrupted step re-executes; step logic is expected to be
	// idempotent under at-least-once recovery.
	start := 0
	for start < len(s.progress) && s.progress[start].Status == StepStatusCompleted {
		start++
	}
	s.startIndex = start
	s.status = snapshot.Status

	return s, nil
}
