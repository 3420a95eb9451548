// Package main provides the saga worker service entry point.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/sagaflow/internal/config"
	"github.com/lllypuk/sagaflow/internal/domain/saga"
	"github.com/lllypuk/sagaflow/internal/engine"
	"github.com/lllypuk/sagaflow/internal/infrastructure/eventbus"
	"github.com/lllypuk/sagaflow/internal/infrastructure/healthcheck"
	"github.com/lllypuk/sagaflow/internal/infrastructure/httpserver"
	"github.com/lllypuk/sagaflow/internal/infrastructure/metrics"
	mongodbinfra "github.com/lllypuk/sagaflow/internal/infrastructure/mongodb"
	"github.com/lllypuk/sagaflow/internal/infrastructure/sagastore"
)

// Timeout constants for worker service.
const redisPingTimeout = 5 * time.Second

//nolint:funlen // Main function handles startup orchestration and is readable as-is
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		//nolint:sloglint // No context available before logger setup
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)

	logger.Info("starting sagaflow worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", "0.1.0"),
	)

	// Create a context that will be cancelled on shutdown signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	go handleShutdown(cancel, logger)

	// Connect to MongoDB
	mongoClient, err := connectMongoDB(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to MongoDB", slog.String("error", err.Error()))
		cancel()
		os.Exit(1) //nolint:gocritic // cancel() called before exit
	}
	defer func() {
		if disconnectErr := mongoClient.Disconnect(context.Background()); disconnectErr != nil {
			logger.Error("failed to disconnect from MongoDB", slog.String("error", disconnectErr.Error()))
		}
	}()

	db := mongoClient.Database(cfg.MongoDB.Database)

	// Ensure indexes exist before serving traffic
	if indexErr := mongodbinfra.CreateAllIndexes(ctx, db); indexErr != nil {
		logger.Error("failed to create MongoDB indexes", slog.String("error", indexErr.Error()))
		os.Exit(1)
	}

	// Setup Redis for EventBus and health checks
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			logger.Error("failed to close Redis", slog.String("error", closeErr.Error()))
		}
	}()

	// Verify Redis connection
	pingCtx, pingCancel := context.WithTimeout(ctx, redisPingTimeout)
	if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
		pingCancel()
		logger.Error("failed to connect to Redis", slog.String("error", pingErr.Error()))
		os.Exit(1)
	}
	pingCancel()

	logger.InfoContext(ctx, "connected to Redis", slog.String("addr", cfg.Redis.Addr))

	// Setup EventBus
	eventBus := eventbus.NewRedisEventBus(
		redisClient,
		eventbus.WithLogger(logger),
		eventbus.WithChannelPrefix(cfg.EventBus.RedisChannelPrefix),
		eventbus.WithDeadLetterKey(cfg.EventBus.DeadLetterKey),
	)

	// Cache invalidation rules are added here as cached read models are
	// introduced; the handler subscribes per rule event type.
	cacheInvalidation := eventbus.NewCacheInvalidationHandler(
		redisClient,
		eventbus.WithCacheLogger(logger),
	)
	if registerErr := cacheInvalidation.RegisterWith(eventBus); registerErr != nil {
		logger.Error("failed to register cache invalidation handler", slog.String("error", registerErr.Error()))
		os.Exit(1)
	}

	// Setup saga state persistence
	stateStore := sagastore.NewMongoSagaStateStore(db, sagastore.WithLogger(logger))

	// Saga definitions for recovery are registered here as they are added
	// to the deployment.
	registry := saga.NewRegistry()

	// Setup metrics and engine
	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)

	sagaEngine := engine.NewEngine(
		stateStore,
		engineConfigFrom(cfg),
		engine.WithLogger(logger),
		engine.WithMetrics(engineMetrics),
		engine.WithRestorer(registry),
	)
	defer func() {
		if closeErr := sagaEngine.Close(); closeErr != nil {
			logger.Error("failed to close saga engine", slog.String("error", closeErr.Error()))
		}
	}()

	logger.Info("saga engine started",
		slog.Int("max_concurrent_sagas", cfg.Engine.MaxConcurrentSagas),
		slog.Bool("auto_recovery", cfg.Engine.AutoRecovery),
		slog.Bool("cleanup_enabled", cfg.Engine.Cleanup.Enabled),
	)

	// Setup HTTP surface: health probes and Prometheus metrics
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	server.RegisterHealth(httpserver.NewHealthEndpoints(
		healthcheck.NewMongoChecker(mongoClient),
		healthcheck.NewRedisChecker(redisClient),
		healthcheck.NewDeadLetterChecker(redisClient, cfg.EventBus.DeadLetterKey),
		healthcheck.NewSagaBacklogChecker(stateStore),
	))

	// Start event bus consumer loop
	busErr := make(chan error, 1)
	go func() {
		busErr <- eventBus.Start(ctx)
	}()

	// Start HTTP server
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for shutdown signal or a fatal component error
	select {
	case <-ctx.Done():
	case runErr := <-busErr:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.Error("event bus error", slog.String("error", runErr.Error()))
		}
	case runErr := <-serverErr:
		if runErr != nil {
			logger.Error("HTTP server error", slog.String("error", runErr.Error()))
		}
	}
	cancel()

	// Graceful shutdown of outward-facing components
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("failed to shutdown HTTP server", slog.String("error", shutdownErr.Error()))
	}
	if shutdownErr := eventBus.Shutdown(); shutdownErr != nil {
		logger.Error("failed to shutdown event bus", slog.String("error", shutdownErr.Error()))
	}

	logger.Info("worker service shutdown complete")
}

// setupLogger creates and configures the structured logger based on configuration.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	level := parseLogLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.IsDevelopment(),
	}

	switch cfg.Log.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// engineConfigFrom maps the application configuration onto engine settings.
func engineConfigFrom(cfg *config.Config) engine.Config {
	return engine.Config{
		MaxConcurrentSagas:    cfg.Engine.MaxConcurrentSagas,
		ExecutionTimeout:      cfg.Engine.ExecutionTimeout,
		StateSaveInterval:     cfg.Engine.StateSaveInterval,
		AutoRecovery:          cfg.Engine.AutoRecovery,
		RecoveryCheckInterval: cfg.Engine.RecoveryCheckInterval,
		RecoveryBatchSize:     cfg.Engine.RecoveryBatchSize,
		Cleanup: engine.CleanupConfig{
			Enabled:       cfg.Engine.Cleanup.Enabled,
			Interval:      cfg.Engine.Cleanup.Interval,
			RetentionDays: cfg.Engine.Cleanup.RetentionDays,
		},
	}
}

// connectMongoDB establishes a connection to MongoDB.
func connectMongoDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mongo.Client, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.MongoDB.URI).
		SetMaxPoolSize(cfg.MongoDB.MaxPoolSize)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, err
	}

	// Ping to verify connection
	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout)
	defer pingCancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return nil, pingErr
	}

	logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", cfg.MongoDB.Database),
	)

	return client, nil
}

// handleShutdown listens for OS signals and cancels the context.
func handleShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-quit
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	cancel()
}
