package testutil

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	redisCtxTimeout              = 10 * time.Second
	redisContainerStartupTimeout = 60 * time.Second
	redisPingTimeout             = 2 * time.Second
	redisPingRetryDelay          = 500 * time.Millisecond
	redisPingMaxRetries          = 5
)

// sharedRedis holds the singleton Redis container.
var (
	sharedRedis     testcontainers.Container
	sharedRedisAddr string
	sharedRedisOnce sync.Once
	sharedRedisErr  error
)

// getSharedRedisAddr starts the shared Redis container once and returns its address.
func getSharedRedisAddr(ctx context.Context) (string, error) {
	sharedRedisOnce.Do(func() {
		startupCtx, cancel := context.WithTimeout(ctx, redisContainerStartupTimeout)
		defer cancel()

		req := testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections").WithStartupTimeout(redisContainerStartupTimeout),
				wait.ForListeningPort("6379/tcp").WithStartupTimeout(redisContainerStartupTimeout),
			),
		}

		cont, err := testcontainers.GenericContainer(startupCtx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			sharedRedisErr = fmt.Errorf("failed to start Redis container: %w", err)
			return
		}

		host, err := cont.Host(startupCtx)
		if err != nil {
			sharedRedisErr = fmt.Errorf("failed to get container host: %w", err)
			return
		}

		port, err := cont.MappedPort(startupCtx, "6379")
		if err != nil {
			sharedRedisErr = fmt.Errorf("failed to get container port: %w", err)
			return
		}

		sharedRedis = cont
		sharedRedisAddr = net.JoinHostPort(host, port.Port())
	})

	return sharedRedisAddr, sharedRedisErr
}

// SetupTestRedis создает клиент Redis с изолированной логической БД для теста.
// Очистка регистрируется через t.Cleanup.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), redisContainerStartupTimeout)
	defer cancel()

	addr, err := getSharedRedisAddr(ctx)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	// Ping with retries
	for i := 0; i < redisPingMaxRetries; i++ {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), redisPingTimeout)
		err = client.Ping(pingCtx).Err()
		pingCancel()
		if err == nil {
			break
		}
		if i < redisPingMaxRetries-1 {
			time.Sleep(redisPingRetryDelay)
		}
	}
	if err != nil {
		t.Fatalf("Failed to ping Redis after %d retries: %v", redisPingMaxRetries, err)
	}

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), redisCtxTimeout)
		defer cleanupCancel()
		_ = client.FlushDB(cleanupCtx).Err()
		_ = client.Close()
	})

	return client
}
