package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
	"github.com/lllypuk/sagaflow/internal/domain/saga"
)

// startMaintenance launches the background tasks: state save, recovery
// scan (when auto-recovery is enabled and a restorer is configured) and
// retention cleanup (when enabled). Close cancels them all.
func (e *Engine) startMaintenance() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelMaintenance = cancel

	e.wg.Add(1)
	go e.stateSaveLoop(ctx)

	if e.config.AutoRecovery && e.restorer != nil {
		e.wg.Add(1)
		go e.recoveryLoop(ctx)
	}

	if e.config.Cleanup.Enabled {
		e.wg.Add(1)
		go e.cleanupLoop(ctx)
	}
}

// stateSaveLoop periodically persists a snapshot of every running saga.
func (e *Engine) stateSaveLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.StateSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.saveRunningStates(ctx)
		}
	}
}

// saveRunningStates persists every registered saga. One saga's failure is
// logged and does not abort the tick for others.
func (e *Engine) saveRunningStates(ctx context.Context) {
	e.mu.Lock()
	slots := e.registry.list()
	e.mu.Unlock()

	for _, sl := range slots {
		e.persistSlot(ctx, sl)
	}
}

// recoveryLoop periodically scans the state store for FAILED sagas and
// recovers them, isolating failures per saga.
func (e *Engine) recoveryLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.RecoveryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.recoverFailedSagas(ctx)
		}
	}
}

func (e *Engine) recoverFailedSagas(ctx context.Context) {
	failed := saga.StatusFailed
	page, err := e.stateStore.Query(ctx, appcore.SagaFilter{
		Status: &failed,
		Limit:  e.config.RecoveryBatchSize,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "recovery scan failed",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, snapshot := range page.Items {
		if _, err = e.RecoverSaga(ctx, snapshot.SagaID); err != nil {
			e.logger.ErrorContext(ctx, "failed to recover saga",
				slog.String("saga_id", snapshot.SagaID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// cleanupLoop periodically deletes saga snapshots past the retention window.
func (e *Engine) cleanupLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Cleanup.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -e.config.Cleanup.RetentionDays)
			if _, err := e.CleanupSnapshots(ctx, cutoff); err != nil {
				e.logger.ErrorContext(ctx, "snapshot cleanup failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
