// Package engine orchestrates saga executions: capacity control, lifecycle
// operations, execution statistics, state persistence and background
// maintenance (state save, recovery scan, retention cleanup).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
	"github.com/lllypuk/sagaflow/internal/domain/saga"
	"github.com/lllypuk/sagaflow/internal/infrastructure/metrics"
)

// ExecutionResult is the deterministic outcome of one Execute call.
// Step failures are captured here, never returned as an error.
type ExecutionResult struct {
	Success       bool
	SagaID        string
	ExecutionTime time.Duration
	Data          map[string]any
	Error         string
}

// RunningSaga describes one currently-registered saga.
type RunningSaga struct {
	SagaID string
	Status saga.Status
}

// Engine executes sagas and owns their runtime state. A single engine
// instance serializes registry and statistics mutations through its mutex.
// Multiple engine instances are not coordinated.
type Engine struct {
	config     Config
	stateStore appcore.SagaStateStore
	restorer   saga.Restorer
	logger     *slog.Logger
	metrics    *metrics.EngineMetrics

	mu       sync.Mutex
	registry *registry
	stats    Statistics
	closed   bool

	cancelMaintenance context.CancelFunc
	wg                sync.WaitGroup
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics attaches a Prometheus metrics bundle.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRestorer configures saga recovery. Without a restorer RecoverSaga
// and the background recovery scan are unavailable.
func WithRestorer(r saga.Restorer) Option {
	return func(e *Engine) {
		e.restorer = r
	}
}

// NewEngine creates an engine and starts its background maintenance tasks.
// The caller must call Close to stop them.
func NewEngine(stateStore appcore.SagaStateStore, config Config, opts ...Option) *Engine {
	e := &Engine{
		config:     config.normalize(),
		stateStore: stateStore,
		logger:     slog.Default(),
		registry:   newRegistry(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.startMaintenance()

	return e
}

// Execute runs a saga to completion. Capacity and duplicate rejections are
// returned as errors; a step failure is converted into the result.
func (e *Engine) Execute(ctx context.Context, s saga.Saga, data map[string]any) (ExecutionResult, error) {
	sagaID := s.SagaID()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ExecutionResult{}, ErrEngineClosed
	}
	if e.registry.len() >= e.config.MaxConcurrentSagas {
		e.mu.Unlock()
		e.observeRejection("capacity")
		return ExecutionResult{}, fmt.Errorf("%w: limit %d", ErrCapacityExceeded, e.config.MaxConcurrentSagas)
	}
	if e.registry.contains(sagaID) {
		e.mu.Unlock()
		e.observeRejection("duplicate")
		return ExecutionResult{}, fmt.Errorf("%w: %s", ErrDuplicateExecution, sagaID)
	}
	sl := e.registry.insert(s)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SagasRunning.Inc()
	}

	execCtx, cancel := context.WithTimeout(ctx, e.config.ExecutionTimeout)
	defer cancel()

	start := time.Now()
	execErr := s.Execute(execCtx, data)
	elapsed := time.Since(start)

	e.mu.Lock()
	e.registry.remove(sagaID)
	e.stats.recordExecution(s.Status(), elapsed)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SagasRunning.Dec()
		e.metrics.SagasFinished.WithLabelValues(s.Name(), string(s.Status())).Inc()
		e.metrics.ExecutionDuration.WithLabelValues(s.Name()).Observe(elapsed.Seconds())
	}

	// Persist the terminal state so recovery and status queries see it.
	e.persistSlot(ctx, sl)

	result := ExecutionResult{
		Success:       execErr == nil,
		SagaID:        sagaID,
		ExecutionTime: elapsed,
		Data:          s.Context(),
	}
	if execErr != nil {
		result.Error = execErr.Error()
		e.logger.ErrorContext(ctx, "saga execution failed",
			slog.String("saga_id", sagaID),
			slog.String("saga_name", s.Name()),
			slog.String("error", execErr.Error()),
		)
	}

	return result, nil
}

// Pause suspends a running saga at its next step boundary.
func (e *Engine) Pause(ctx context.Context, sagaID string) error {
	sl, err := e.lookup(sagaID)
	if err != nil {
		return err
	}

	if err = sl.saga.Pause(); err != nil {
		return err
	}

	e.mu.Lock()
	e.stats.PausedCount++
	e.mu.Unlock()

	e.persistSlot(ctx, sl)
	return nil
}

// Resume continues a paused saga.
func (e *Engine) Resume(ctx context.Context, sagaID string) error {
	sl, err := e.lookup(sagaID)
	if err != nil {
		return err
	}

	if err = sl.saga.Resume(); err != nil {
		return err
	}

	e.mu.Lock()
	e.stats.PausedCount--
	e.mu.Unlock()

	e.persistSlot(ctx, sl)
	return nil
}

// Cancel requests a cooperative stop and unregisters the saga. The
// SagasRunning gauge is owned by Execute: its in-flight goroutine is still
// finishing the current step and decrements on return.
func (e *Engine) Cancel(ctx context.Context, sagaID, reason string) error {
	sl, err := e.lookup(sagaID)
	if err != nil {
		return err
	}

	if err = sl.saga.Cancel(reason); err != nil {
		return err
	}

	e.mu.Lock()
	e.registry.remove(sagaID)
	e.mu.Unlock()

	e.persistSlot(ctx, sl)
	return nil
}

// Compensate reverses the completed steps of a failed saga.
func (e *Engine) Compensate(ctx context.Context, sagaID, reason string) error {
	sl, err := e.lookup(sagaID)
	if err != nil {
		return err
	}

	if err = sl.saga.Compensate(ctx, reason); err != nil {
		return err
	}

	e.mu.Lock()
	e.stats.CompensationCount++
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.CompensationsTotal.Inc()
	}

	e.persistSlot(ctx, sl)
	return nil
}

// SagaStatus reports the status of a saga: the running registry first,
// falling back to the last persisted snapshot.
func (e *Engine) SagaStatus(ctx context.Context, sagaID string) (saga.Status, error) {
	e.mu.Lock()
	sl, ok := e.registry.get(sagaID)
	e.mu.Unlock()

	if ok {
		return sl.saga.Status(), nil
	}

	snapshot, err := e.stateStore.GetByID(ctx, sagaID)
	if err != nil {
		return "", err
	}

	return snapshot.Status, nil
}

// ExecutionStatistics returns a copy of the engine-wide counters.
func (e *Engine) ExecutionStatistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := e.stats
	stats.ActiveCount = e.registry.len()
	return stats
}

// RunningSagas lists every currently-registered saga with its status.
func (e *Engine) RunningSagas() []RunningSaga {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]RunningSaga, 0, e.registry.len())
	for _, sl := range e.registry.list() {
		out = append(out, RunningSaga{
			SagaID: sl.saga.SagaID(),
			Status: sl.saga.Status(),
		})
	}
	return out
}

// RecoverSaga replays a FAILED saga from its persisted snapshot. The
// restorer rebuilds the saga positioned after the last completed step and
// the engine re-executes the remaining steps.
func (e *Engine) RecoverSaga(ctx context.Context, sagaID string) (ExecutionResult, error) {
	snapshot, err := e.stateStore.GetByID(ctx, sagaID)
	if err != nil {
		return ExecutionResult{}, err
	}

	if snapshot.Status != saga.StatusFailed {
		e.observeRecovery(false)
		return ExecutionResult{}, fmt.Errorf(
			"%w: recovery requires %s status, got %s",
			saga.ErrInvalidTransition, saga.StatusFailed, snapshot.Status,
		)
	}

	if e.restorer == nil {
		return ExecutionResult{}, ErrNoRestorer
	}

	restored, err := e.restorer.Restore(snapshot)
	if err != nil {
		e.observeRecovery(false)
		return ExecutionResult{}, fmt.Errorf("failed to restore saga %s: %w", sagaID, err)
	}

	e.logger.InfoContext(ctx, "recovering saga",
		slog.String("saga_id", sagaID),
		slog.String("saga_name", snapshot.Name),
	)

	result, err := e.Execute(ctx, restored, snapshot.Context)
	if err != nil {
		e.observeRecovery(false)
		return ExecutionResult{}, err
	}

	e.observeRecovery(result.Success)
	return result, nil
}

// CleanupSnapshots removes saga snapshots older than the given time.
func (e *Engine) CleanupSnapshots(ctx context.Context, before time.Time) (int64, error) {
	deleted, err := e.stateStore.Cleanup(ctx, before)
	if err != nil {
		return 0, err
	}

	if e.metrics != nil {
		e.metrics.CleanupDeleted.Add(float64(deleted))
	}

	return deleted, nil
}

// Close stops the background maintenance tasks and marks the engine closed.
// No ticks run after Close returns.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancelMaintenance()
	e.wg.Wait()

	return nil
}

// lookup finds a registered saga or returns ErrSagaNotFound.
func (e *Engine) lookup(sagaID string) (*slot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sl, ok := e.registry.get(sagaID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", appcore.ErrSagaNotFound, sagaID)
	}
	return sl, nil
}

// persistSlot saves the current saga state, bumping the slot's snapshot
// version. Persistence failures are logged and do not fail the operation.
func (e *Engine) persistSlot(ctx context.Context, sl *slot) {
	e.mu.Lock()
	sl.version++
	version := sl.version
	e.mu.Unlock()

	snapshot := saga.TakeSnapshot(sl.saga, version)

	err := e.stateStore.Save(ctx, snapshot)
	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		e.metrics.StateSavesTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to persist saga state",
			slog.String("saga_id", sl.saga.SagaID()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) observeRejection(reason string) {
	if e.metrics != nil {
		e.metrics.RejectedTotal.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) observeRecovery(success bool) {
	if e.metrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	e.metrics.RecoveriesTotal.WithLabelValues(status).Inc()
}
