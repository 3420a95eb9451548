// Package healthcheck provides health check implementations for monitoring system consistency.
package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
	"github.com/lllypuk/sagaflow/internal/domain/saga"
)

// Default thresholds for the failed-saga backlog.
const (
	defaultWarningThreshold  = 10
	defaultCriticalThreshold = 100
)

// SagaBacklogChecker reports the number of FAILED sagas awaiting recovery.
type SagaBacklogChecker struct {
	store             appcore.SagaStateStore
	warningThreshold  int64
	criticalThreshold int64
}

// SagaBacklogOption configures SagaBacklogChecker.
type SagaBacklogOption func(*SagaBacklogChecker)

// WithWarningThreshold sets the warning threshold for the backlog count.
func WithWarningThreshold(threshold int64) SagaBacklogOption {
	return func(c *SagaBacklogChecker) {
		c.warningThreshold = threshold
	}
}

// WithCriticalThreshold sets the critical threshold for the backlog count.
func WithCriticalThreshold(threshold int64) SagaBacklogOption {
	return func(c *SagaBacklogChecker) {
		c.criticalThreshold = threshold
	}
}

// NewSagaBacklogChecker creates a new failed-saga backlog health checker.
func NewSagaBacklogChecker(store appcore.SagaStateStore, opts ...SagaBacklogOption) *SagaBacklogChecker {
	c := &SagaBacklogChecker{
		store:             store,
		warningThreshold:  defaultWarningThreshold,
		criticalThreshold: defaultCriticalThreshold,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the name of this health checker.
func (c *SagaBacklogChecker) Name() string {
	return "saga_backlog"
}

// Check performs the health check.
func (c *SagaBacklogChecker) Check(ctx context.Context) appcore.HealthStatus {
	failed := saga.StatusFailed
	page, err := c.store.Query(ctx, appcore.SagaFilter{Status: &failed, Limit: 1})
	if err != nil {
		return appcore.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("failed to query saga backlog: %v", err),
			CheckedAt: time.Now(),
		}
	}

	count := page.Total
	healthy := count < c.warningThreshold

	details := map[string]any{
		"failed_sagas":       count,
		"warning_threshold":  c.warningThreshold,
		"critical_threshold": c.criticalThreshold,
	}

	return appcore.HealthStatus{
		Healthy:   healthy,
		Message:   fmt.Sprintf("failed saga backlog: %d sagas", count),
		Details:   details,
		CheckedAt: time.Now(),
	}
}
