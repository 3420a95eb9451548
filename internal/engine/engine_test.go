package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
	"github.com/lllypuk/sagaflow/internal/domain/saga"
	"github.com/lllypuk/sagaflow/internal/engine"
	"github.com/lllypuk/sagaflow/internal/infrastructure/metrics"
	"github.com/lllypuk/sagaflow/internal/infrastructure/sagastore"
)

func noopStep(_ context.Context, _ *saga.ContextData) error {
	return nil
}

func newTestEngine(t *testing.T, cfg engine.Config, opts ...engine.Option) (*engine.Engine, *sagastore.InMemorySagaStateStore) {
	t.Helper()

	store := sagastore.NewInMemorySagaStateStore()
	eng := engine.NewEngine(store, cfg, opts...)
	t.Cleanup(func() { _ = eng.Close() })

	return eng, store
}

func simpleSaga(t *testing.T, id string, steps []saga.StepDefinition) *saga.OrderedSaga {
	t.Helper()

	s, err := saga.NewOrderedSaga(id, "order-fulfillment", steps)
	require.NoError(t, err)
	return s
}

// Scenario: all steps succeed. Final status COMPLETED, success counter
// increments by exactly one, saga absent from the running list afterward.
func TestEngine_ExecuteSuccess(t *testing.T) {
	eng, store := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	s := simpleSaga(t, "s1", []saga.StepDefinition{
		{Name: "reserve", Execute: noopStep},
		{Name: "charge", Execute: noopStep},
	})

	before := eng.ExecutionStatistics()

	result, err := eng.Execute(ctx, s, map[string]any{"order_id": "order-1"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "s1", result.SagaID)
	assert.Empty(t, result.Error)
	assert.Equal(t, saga.StatusCompleted, s.Status())

	after := eng.ExecutionStatistics()
	assert.Equal(t, before.SuccessCount+1, after.SuccessCount)
	assert.Equal(t, before.FailureCount, after.FailureCount)
	assert.Empty(t, eng.RunningSagas())

	// Terminal state persisted.
	snapshot, err := store.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, snapshot.Status)
}

// Scenario: the first step fails. Execute returns a failure result, not an
// error; failure counter increments by exactly one.
func TestEngine_ExecuteStepFailure(t *testing.T) {
	eng, store := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	stepErr := errors.New("payment declined")
	s := simpleSaga(t, "s2", []saga.StepDefinition{
		{Name: "charge", Execute: func(_ context.Context, _ *saga.ContextData) error {
			return stepErr
		}},
	})

	before := eng.ExecutionStatistics()

	result, err := eng.Execute(ctx, s, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "payment declined")
	assert.Equal(t, saga.StatusFailed, s.Status())

	after := eng.ExecutionStatistics()
	assert.Equal(t, before.FailureCount+1, after.FailureCount)
	assert.Equal(t, before.SuccessCount, after.SuccessCount)
	assert.Empty(t, eng.RunningSagas())

	snapshot, err := store.GetByID(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, snapshot.Status)
}

func TestEngine_ExecuteObservesRunningStatus(t *testing.T) {
	eng, _ := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	s := simpleSaga(t, "s3", []saga.StepDefinition{
		{Name: "wait", Execute: func(_ context.Context, _ *saga.ContextData) error {
			close(entered)
			<-release
			return nil
		}},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = eng.Execute(ctx, s, nil)
	}()

	<-entered
	status, err := eng.SagaStatus(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusRunning, status)

	running := eng.RunningSagas()
	require.Len(t, running, 1)
	assert.Equal(t, "s3", running[0].SagaID)

	close(release)
	<-done
}

// Scenario: a second Execute with the same saga id while the first is still
// registered is rejected as a duplicate.
func TestEngine_DuplicateExecution(t *testing.T) {
	eng, _ := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	first := simpleSaga(t, "s4", []saga.StepDefinition{
		{Name: "wait", Execute: func(_ context.Context, _ *saga.ContextData) error {
			close(entered)
			<-release
			return nil
		}},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = eng.Execute(ctx, first, nil)
	}()

	<-entered

	second := simpleSaga(t, "s4", []saga.StepDefinition{
		{Name: "noop", Execute: noopStep},
	})

	_, err := eng.Execute(ctx, second, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrDuplicateExecution)

	close(release)
	wg.Wait()
}

// Scenario: with maxConcurrentSagas = K, the (K+1)-th concurrent execution
// is rejected with a capacity error.
func TestEngine_CapacityExceeded(t *testing.T) {
	const limit = 3

	cfg := engine.DefaultConfig()
	cfg.MaxConcurrentSagas = limit
	eng, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	release := make(chan struct{})
	var started sync.WaitGroup
	var finished sync.WaitGroup

	for i := 0; i < limit; i++ {
		started.Add(1)
		finished.Add(1)
		s := simpleSaga(t, "saga-"+string(rune('a'+i)), []saga.StepDefinition{
			{Name: "wait", Execute: func(_ context.Context, _ *saga.ContextData) error {
				started.Done()
				<-release
				return nil
			}},
		})
		go func() {
			defer finished.Done()
			_, _ = eng.Execute(ctx, s, nil)
		}()
	}

	started.Wait()
	require.Len(t, eng.RunningSagas(), limit)

	overflow := simpleSaga(t, "saga-overflow", []saga.StepDefinition{
		{Name: "noop", Execute: noopStep},
	})

	_, err := eng.Execute(ctx, overflow, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrCapacityExceeded)

	close(release)
	finished.Wait()
}

func TestEngine_PauseResume(t *testing.T) {
	eng, _ := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	firstDone := make(chan struct{})
	secondEntered := make(chan struct{})
	s := simpleSaga(t, "s5", []saga.StepDefinition{
		{Name: "first", Execute: func(_ context.Context, _ *saga.ContextData) error {
			close(firstDone)
			return nil
		}},
		{Name: "second", Execute: func(_ context.Context, _ *saga.ContextData) error {
			close(secondEntered)
			return nil
		}},
	})

	done := make(chan engine.ExecutionResult, 1)
	go func() {
		result, _ := eng.Execute(ctx, s, nil)
		done <- result
	}()

	<-firstDone
	// Pause may land after the pause gate of step two was already passed;
	// retry until the saga reports PAUSED or completes.
	err := eng.Pause(ctx, "s5")
	if err == nil {
		status, statusErr := eng.SagaStatus(ctx, "s5")
		require.NoError(t, statusErr)
		if status == saga.StatusPaused {
			require.NoError(t, eng.Resume(ctx, "s5"))
		}
	}

	result := <-done
	assert.True(t, result.Success)

	select {
	case <-secondEntered:
	default:
		t.Fatal("second step never ran")
	}
}

func TestEngine_ControlOperationsUnknownSaga(t *testing.T) {
	eng, _ := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	assert.ErrorIs(t, eng.Pause(ctx, "missing"), appcore.ErrSagaNotFound)
	assert.ErrorIs(t, eng.Resume(ctx, "missing"), appcore.ErrSagaNotFound)
	assert.ErrorIs(t, eng.Cancel(ctx, "missing", "reason"), appcore.ErrSagaNotFound)
	assert.ErrorIs(t, eng.Compensate(ctx, "missing", "reason"), appcore.ErrSagaNotFound)
}

func TestEngine_SagaStatusFallsBackToStore(t *testing.T) {
	eng, store := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, saga.Snapshot{
		SagaID:    "persisted",
		Name:      "order-fulfillment",
		Status:    saga.StatusCompleted,
		Timestamp: time.Now().UTC(),
	}))

	status, err := eng.SagaStatus(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, status)

	_, err = eng.SagaStatus(ctx, "missing")
	assert.ErrorIs(t, err, appcore.ErrSagaNotFound)
}

// Scenario: recovery of a saga whose snapshot is COMPLETED is an invalid
// transition; recovery is only valid from FAILED.
func TestEngine_RecoverRequiresFailedStatus(t *testing.T) {
	registry := saga.NewRegistry()
	require.NoError(t, registry.Register(saga.Definition{
		Name: "order-fulfillment",
		Steps: []saga.StepDefinition{
			{Name: "reserve", Execute: noopStep},
		},
	}))

	eng, store := newTestEngine(t, engine.DefaultConfig(), engine.WithRestorer(registry))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, saga.Snapshot{
		SagaID:    "done",
		Name:      "order-fulfillment",
		Status:    saga.StatusCompleted,
		Timestamp: time.Now().UTC(),
	}))

	_, err := eng.RecoverSaga(ctx, "done")
	require.Error(t, err)
	assert.ErrorIs(t, err, saga.ErrInvalidTransition)

	_, err = eng.RecoverSaga(ctx, "missing")
	assert.ErrorIs(t, err, appcore.ErrSagaNotFound)
}

// Recovery replays the remaining steps: only the step after the last
// completed one runs again.
func TestEngine_RecoverReplaysRemainingSteps(t *testing.T) {
	var mu sync.Mutex
	var executed []string

	record := func(name string) saga.StepFunc {
		return func(_ context.Context, _ *saga.ContextData) error {
			mu.Lock()
			executed = append(executed, name)
			mu.Unlock()
			return nil
		}
	}

	registry := saga.NewRegistry()
	require.NoError(t, registry.Register(saga.Definition{
		Name: "order-fulfillment",
		Steps: []saga.StepDefinition{
			{Name: "reserve", Execute: record("reserve")},
			{Name: "charge", Execute: record("charge")},
			{Name: "ship", Execute: record("ship")},
		},
	}))

	eng, store := newTestEngine(t, engine.DefaultConfig(), engine.WithRestorer(registry))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, saga.Snapshot{
		SagaID: "s6",
		Name:   "order-fulfillment",
		Status: saga.StatusFailed,
		Context: map[string]any{
			"order_id": "order-1",
		},
		Steps: []saga.StepProgress{
			{StepIndex: 0, StepName: "reserve", Status: saga.StepStatusCompleted},
			{StepIndex: 1, StepName: "charge", Status: saga.StepStatusFailed},
			{StepIndex: 2, StepName: "ship", Status: saga.StepStatusPending},
		},
		Timestamp: time.Now().UTC(),
		Version:   3,
	}))

	result, err := eng.RecoverSaga(ctx, "s6")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"charge", "ship"}, executed)

	snapshot, err := store.GetByID(ctx, "s6")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, snapshot.Status)
}

func TestEngine_StateSaveTickPersistsRunningSagas(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.StateSaveInterval = 20 * time.Millisecond
	eng, store := newTestEngine(t, cfg)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	s := simpleSaga(t, "s7", []saga.StepDefinition{
		{Name: "wait", Execute: func(_ context.Context, _ *saga.ContextData) error {
			close(entered)
			<-release
			return nil
		}},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = eng.Execute(ctx, s, nil)
	}()

	<-entered

	// The tick persists the RUNNING state while the step is in flight.
	require.Eventually(t, func() bool {
		snapshot, err := store.GetByID(ctx, "s7")
		return err == nil && snapshot.Status == saga.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	<-done
}

func TestEngine_AutoRecoveryTick(t *testing.T) {
	registry := saga.NewRegistry()
	require.NoError(t, registry.Register(saga.Definition{
		Name: "order-fulfillment",
		Steps: []saga.StepDefinition{
			{Name: "reserve", Execute: noopStep},
		},
	}))

	cfg := engine.DefaultConfig()
	cfg.RecoveryCheckInterval = 20 * time.Millisecond
	_, store := newTestEngine(t, cfg, engine.WithRestorer(registry))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, saga.Snapshot{
		SagaID:    "s8",
		Name:      "order-fulfillment",
		Status:    saga.StatusFailed,
		Timestamp: time.Now().UTC(),
	}))

	require.Eventually(t, func() bool {
		snapshot, err := store.GetByID(ctx, "s8")
		return err == nil && snapshot.Status == saga.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_CleanupTick(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.Cleanup = engine.CleanupConfig{
		Enabled:       true,
		Interval:      20 * time.Millisecond,
		RetentionDays: 1,
	}
	_, store := newTestEngine(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, saga.Snapshot{
		SagaID:    "stale",
		Name:      "order-fulfillment",
		Status:    saga.StatusCompleted,
		Timestamp: time.Now().UTC().AddDate(0, 0, -2),
	}))

	require.Eventually(t, func() bool {
		_, err := store.GetByID(ctx, "stale")
		return errors.Is(err, appcore.ErrSagaNotFound)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_CloseStopsTicksAndRejectsExecute(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.StateSaveInterval = 10 * time.Millisecond
	store := sagastore.NewInMemorySagaStateStore()
	eng := engine.NewEngine(store, cfg)

	require.NoError(t, eng.Close())
	// Close is idempotent.
	require.NoError(t, eng.Close())

	s, err := saga.NewOrderedSaga("s9", "order-fulfillment", []saga.StepDefinition{
		{Name: "noop", Execute: noopStep},
	})
	require.NoError(t, err)

	_, err = eng.Execute(context.Background(), s, nil)
	assert.ErrorIs(t, err, engine.ErrEngineClosed)
}

func TestEngine_CancelUnregisters(t *testing.T) {
	eng, store := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	s := simpleSaga(t, "s10", []saga.StepDefinition{
		{Name: "first", Execute: func(_ context.Context, _ *saga.ContextData) error {
			close(entered)
			<-release
			return nil
		}},
		{Name: "second", Execute: noopStep},
	})

	done := make(chan engine.ExecutionResult, 1)
	go func() {
		result, _ := eng.Execute(ctx, s, nil)
		done <- result
	}()

	<-entered
	before := eng.ExecutionStatistics()
	require.NoError(t, eng.Cancel(ctx, "s10", "operator request"))
	assert.Empty(t, eng.RunningSagas())

	close(release)
	result := <-done

	// The in-flight step finishes, the next step boundary observes the
	// cancellation.
	assert.False(t, result.Success)
	assert.Equal(t, saga.StatusCancelled, s.Status())

	// The run counts as cancelled, not failed.
	after := eng.ExecutionStatistics()
	assert.Equal(t, before.CancelledCount+1, after.CancelledCount)
	assert.Equal(t, before.FailureCount, after.FailureCount)

	snapshot, err := store.GetByID(ctx, "s10")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCancelled, snapshot.Status)
}

// Cancelling an in-flight saga must not decrement the running gauge twice:
// the Execute goroutine owns the increment/decrement pair.
func TestEngine_CancelKeepsRunningGaugeBalanced(t *testing.T) {
	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)
	eng, _ := newTestEngine(t, engine.DefaultConfig(), engine.WithMetrics(engineMetrics))
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	s := simpleSaga(t, "s11", []saga.StepDefinition{
		{Name: "first", Execute: func(_ context.Context, _ *saga.ContextData) error {
			close(entered)
			<-release
			return nil
		}},
		{Name: "second", Execute: noopStep},
	})

	done := make(chan struct{})
	go func() {
		_, _ = eng.Execute(ctx, s, nil)
		close(done)
	}()

	<-entered
	assert.InDelta(t, 1, testutil.ToFloat64(engineMetrics.SagasRunning), 0)

	require.NoError(t, eng.Cancel(ctx, "s11", "operator request"))

	close(release)
	<-done

	assert.InDelta(t, 0, testutil.ToFloat64(engineMetrics.SagasRunning), 0)
}

// Pause and resume adjust the paused counter deterministically while the
// gated step holds the saga in flight.
func TestEngine_PauseResumeCountsPaused(t *testing.T) {
	eng, _ := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	s := simpleSaga(t, "s12", []saga.StepDefinition{
		{Name: "first", Execute: func(_ context.Context, _ *saga.ContextData) error {
			close(entered)
			<-release
			return nil
		}},
	})

	done := make(chan struct{})
	go func() {
		_, _ = eng.Execute(ctx, s, nil)
		close(done)
	}()

	<-entered
	require.NoError(t, eng.Pause(ctx, "s12"))
	assert.Equal(t, int64(1), eng.ExecutionStatistics().PausedCount)

	require.NoError(t, eng.Resume(ctx, "s12"))
	assert.Equal(t, int64(0), eng.ExecutionStatistics().PausedCount)

	close(release)
	<-done

	assert.Equal(t, saga.StatusCompleted, s.Status())
}

func TestEngine_StatisticsIncrementalMean(t *testing.T) {
	eng, _ := newTestEngine(t, engine.DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := simpleSaga(t, "mean-"+string(rune('a'+i)), []saga.StepDefinition{
			{Name: "noop", Execute: noopStep},
		})
		_, err := eng.Execute(ctx, s, nil)
		require.NoError(t, err)
	}

	stats := eng.ExecutionStatistics()
	assert.Equal(t, int64(3), stats.TotalExecuted)
	assert.Equal(t, int64(3), stats.SuccessCount)
	assert.GreaterOrEqual(t, stats.AverageExecutionTime, time.Duration(0))
	assert.False(t, stats.LastExecutedAt.IsZero())
	assert.Zero(t, stats.ActiveCount)
}
