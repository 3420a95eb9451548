package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
)

// MongoChecker verifies MongoDB connectivity with a ping.
type MongoChecker struct {
	client *mongo.Client
}

// NewMongoChecker creates a MongoDB health checker.
func NewMongoChecker(client *mongo.Client) *MongoChecker {
	return &MongoChecker{client: client}
}

// Name returns the name of this health checker.
func (c *MongoChecker) Name() string {
	return "mongodb"
}

// Check performs the health check.
func (c *MongoChecker) Check(ctx context.Context) appcore.HealthStatus {
	start := time.Now()
	if err := c.client.Ping(ctx, nil); err != nil {
		return appcore.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("mongodb ping failed: %v", err),
			CheckedAt: time.Now(),
		}
	}

	return appcore.HealthStatus{
		Healthy: true,
		Message: "mongodb is reachable",
		Details: map[string]any{
			"ping_duration": time.Since(start).String(),
		},
		CheckedAt: time.Now(),
	}
}

// RedisChecker verifies Redis connectivity with a ping.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name returns the name of this health checker.
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check performs the health check.
func (c *RedisChecker) Check(ctx context.Context) appcore.HealthStatus {
	start := time.Now()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return appcore.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("redis ping failed: %v", err),
			CheckedAt: time.Now(),
		}
	}

	return appcore.HealthStatus{
		Healthy: true,
		Message: "redis is reachable",
		Details: map[string]any{
			"ping_duration": time.Since(start).String(),
		},
		CheckedAt: time.Now(),
	}
}
