// Package container provides dependency injection and lifecycle management
// for the controlled-documents service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Storage configuration
	Storage StorageConfig

	// Lifecycle engine configuration
	Lifecycle LifecycleConfig

	// Lark API configuration
	Lark LarkConfig

	// Redis leader lock configuration
	Redis RedisConfig

	// Escalation delivery configuration
	Delivery DeliveryConfig

	// Worker configuration
	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// BaseDir is the root directory for rendition files
	BaseDir string
}

// LifecycleConfig holds engine settings.
type LifecycleConfig struct {
	// LockTTL is the default checkout lease
	LockTTL time.Duration
}

// LarkConfig holds Lark API settings. Empty credentials select the log notifier.
type LarkConfig struct {
	AppID          string
	AppSecret      string
	ReceiveIDType  string
	RequestTimeout time.Duration
}

// RedisConfig holds the leader lock connection. An empty Address selects
// the in-process lock.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DeliveryConfig holds escalation notification settings.
type DeliveryConfig struct {
	MaxAttempts      int
	RetryAttempts    int
	RetryDelay       time.Duration
	BatchSize        int
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// Escalation scheduler settings
	EscalationEnabled     bool
	EscalationInterval    time.Duration
	EscalationConcurrency int
	EscalationLockTTL     time.Duration

	// Retention sweep settings
	RetentionEnabled  bool
	RetentionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/controlled-docs.db",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Storage: StorageConfig{
			BaseDir: "data/renditions",
		},
		Lifecycle: LifecycleConfig{
			LockTTL: 30 * time.Minute,
		},
		Lark: LarkConfig{
			ReceiveIDType: "open_id",
		},
		Redis: RedisConfig{
			KeyPrefix:    "controlled-docs:",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Delivery: DeliveryConfig{
			MaxAttempts:      5,
			RetryAttempts:    3,
			RetryDelay:       500 * time.Millisecond,
			BatchSize:        100,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Worker: WorkerConfig{
			EscalationEnabled:     true,
			EscalationInterval:    24 * time.Hour,
			EscalationConcurrency: 4,
			RetentionEnabled:      true,
			RetentionInterval:     24 * time.Hour,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Lifecycle.LockTTL <= 0 {
		return fmt.Errorf("lifecycle.lock_ttl must be positive")
	}
	if c.Worker.EscalationEnabled && c.Worker.EscalationInterval <= 0 {
		return fmt.Errorf("escalation interval must be positive")
	}
	if c.Worker.RetentionEnabled && c.Worker.RetentionInterval <= 0 {
		return fmt.Errorf("retention interval must be positive")
	}
	return nil
}
