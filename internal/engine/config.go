package engine

import "time"

// Default engine configuration values.
const (
	defaultMaxConcurrentSagas    = 100
	defaultExecutionTimeout      = 5 * time.Minute
	defaultStateSaveInterval     = 5 * time.Second
	defaultRecoveryCheckInterval = 30 * time.Second
	defaultCleanupInterval       = 1 * time.Hour
	defaultRetentionDays         = 7
	defaultRecoveryBatchSize     = 50
)

// CleanupConfig controls the retention cleanup background task.
type CleanupConfig struct {
	// Enabled determines if the cleanup task should run.
	Enabled bool

	// Interval is how often to run the cleanup.
	Interval time.Duration

	// RetentionDays is the age in days after which saga snapshots are deleted.
	RetentionDays int
}

// Config contains configuration for the saga execution engine.
type Config struct {
	// MaxConcurrentSagas caps the number of sagas registered as running.
	MaxConcurrentSagas int

	// ExecutionTimeout bounds a single saga execution via context deadline.
	ExecutionTimeout time.Duration

	// StateSaveInterval is the period of the state persistence tick.
	StateSaveInterval time.Duration

	// AutoRecovery enables the background scan for FAILED sagas.
	AutoRecovery bool

	// RecoveryCheckInterval is the period of the recovery scan tick.
	RecoveryCheckInterval time.Duration

	// RecoveryBatchSize is the page size of the recovery scan query.
	RecoveryBatchSize int

	// Cleanup controls retention cleanup of old saga snapshots.
	Cleanup CleanupConfig
}

// DefaultConfig returns sensible default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSagas:    defaultMaxConcurrentSagas,
		ExecutionTimeout:      defaultExecutionTimeout,
		StateSaveInterval:     defaultStateSaveInterval,
		AutoRecovery:          true,
		RecoveryCheckInterval: defaultRecoveryCheckInterval,
		RecoveryBatchSize:     defaultRecoveryBatchSize,
		Cleanup: CleanupConfig{
			Enabled:       false,
			Interval:      defaultCleanupInterval,
			RetentionDays: defaultRetentionDays,
		},
	}
}

// normalize fills zero values with defaults.
func (c Config) normalize() Config {
	if c.MaxConcurrentSagas <= 0 {
		c.MaxConcurrentSagas = defaultMaxConcurrentSagas
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = defaultExecutionTimeout
	}
	if c.StateSaveInterval <= 0 {
		c.StateSaveInterval = defaultStateSaveInterval
	}
	if c.RecoveryCheckInterval <= 0 {
		c.RecoveryCheckInterval = defaultRecoveryCheckInterval
	}
	if c.RecoveryBatchSize <= 0 {
		c.RecoveryBatchSize = defaultRecoveryBatchSize
	}
	if c.Cleanup.Interval <= 0 {
		c.Cleanup.Interval = defaultCleanupInterval
	}
	if c.Cleanup.RetentionDays <= 0 {
		c.Cleanup.RetentionDays = defaultRetentionDays
	}
	return c
}
