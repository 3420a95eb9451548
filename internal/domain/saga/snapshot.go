package saga

import "time"

// StepProgress is the persisted progress record of one saga step.
type StepProgress struct {
	StepIndex  int        `json:"step_index"            bson:"step_index"`
	StepName   string     `json:"step_name"             bson:"step_name"`
	Status     StepStatus `json:"status"                bson:"status"`
	ExecutedAt *time.Time `json:"executed_at,omitempty" bson:"executed_at,omitempty"`
}

// Snapshot is the durable execution state of a saga, persisted by the
// engine on every state-save tick and at every lifecycle transition.
// It is the unit of crash recovery.
type Snapshot struct {
	SagaID      string         `json:"saga_id"                bson:"saga_id"`
	Name        string         `json:"name"                   bson:"name"`
	AggregateID string         `json:"aggregate_id,omitempty" bson:"aggregate_id,omitempty"`
	Status      Status         `json:"status"                 bson:"status"`
	Context     map[string]any `json:"context"                bson:"context"`
	Steps       []StepProgress `json:"steps"                  bson:"steps"`
	Timestamp   time.Time      `json:"timestamp"              bson:"timestamp"`
	Version     int            `json:"version"                bson:"version"`
}

// TakeSnapshot captures the current execution state of a saga. The version
// is owned by the caller (the engine increments it per save). The aggregate
// correlation is picked up when the saga implements AggregateID() string.
func TakeSnapshot(s Saga, version int) Snapshot {
	var aggregateID string
	if p, ok := s.(interface{ AggregateID() string }); ok {
		aggregateID = p.AggregateID()
	}

	steps := s.Steps()
	progress := make([]StepProgress, len(steps))
	for i, step := range steps {
		progress[i] = StepProgress{
			StepIndex:  i,
			StepName:   step.Name,
			Status:     step.Status,
			ExecutedAt: step.ExecutedAt,
		}
	}

	return Snapshot{
		SagaID:      s.SagaID(),
		Name:        s.Name(),
		AggregateID: aggregateID,
		Status:      s.Status(),
		Context:     s.Context(),
		Steps:       progress,
		Timestamp:   time.Now().UTC(),
		Version:     version,
	}
}
