package event

// Stream is a read-only view over a slice of one aggregate's event history.
// It is produced by event store queries and never persisted directly.
type Stream struct {
	AggregateID string
	Events      []DomainEvent
	FromVersion int
	ToVersion   int
	TotalEvents int
	HasMore     bool
}

// IsEmpty reports whether the stream contains no events.
func (s Stream) IsEmpty() bool {
	return len(s.Events) == 0
}

// LastVersion returns the version of the last event in the stream,
// or 0 for an empty stream.
func (s Stream) LastVersion() int {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].Version()
}
