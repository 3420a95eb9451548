package engine

import (
	"time"

	"github.com/lllypuk/sagaflow/internal/domain/saga"
)

// Statistics holds engine-wide execution counters by lifecycle outcome.
// PausedCount tracks currently-paused sagas; the other counters are
// cumulative. ExecutionStatistics returns a copy; counters reset when
// the engine is reconstructed.
type Statistics struct {
	TotalExecuted        int64
	SuccessCount         int64
	FailureCount         int64
	CancelledCount       int64
	CompensationCount    int64
	PausedCount          int64
	ActiveCount          int
	AverageExecutionTime time.Duration
	LastExecutedAt       time.Time
}

// recordExecution updates counters for one finished execution, classified
// by the saga's terminal status, using an incremental mean:
// avg' = (avg*(n-1) + sample) / n.
func (s *Statistics) recordExecution(status saga.Status, elapsed time.Duration) {
	s.TotalExecuted++
	switch status {
	case saga.StatusCompleted:
		s.SuccessCount++
	case saga.StatusCancelled:
		s.CancelledCount++
	default:
		s.FailureCount++
	}

	n := s.TotalExecuted
	s.AverageExecutionTime = time.Duration(
		(int64(s.AverageExecutionTime)*(n-1) + int64(elapsed)) / n,
	)
	s.LastExecutedAt = time.Now().UTC()
}
