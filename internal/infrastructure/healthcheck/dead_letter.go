package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
)

// DeadLetterChecker checks the event bus dead-letter list length.
type DeadLetterChecker struct {
	client        *redis.Client
	deadLetterKey string
}

// NewDeadLetterChecker creates a new dead-letter health checker.
func NewDeadLetterChecker(client *redis.Client, deadLetterKey string) *DeadLetterChecker {
	return &DeadLetterChecker{
		client:        client,
		deadLetterKey: deadLetterKey,
	}
}

// Name returns the name of this health checker.
func (c *DeadLetterChecker) Name() string {
	return "dead_letter_queue"
}

// Check performs the health check.
func (c *DeadLetterChecker) Check(ctx context.Context) appcore.HealthStatus {
	count, err := c.client.LLen(ctx, c.deadLetterKey).Result()
	if err != nil {
		return appcore.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("failed to get dead letter queue length: %v", err),
			CheckedAt: time.Now(),
		}
	}

	return appcore.HealthStatus{
		Healthy: count == 0,
		Message: fmt.Sprintf("dead letter queue: %d events", count),
		Details: map[string]any{
			"dead_letters": count,
		},
		CheckedAt: time.Now(),
	}
}
