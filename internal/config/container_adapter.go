package config

import (
	"github.com/garyjia/controlled-docs/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Storage: container.StorageConfig{
			BaseDir: c.Storage.BaseDir,
		},
		Lifecycle: container.LifecycleConfig{
			LockTTL: c.Lifecycle.LockTTL,
		},
		Lark: container.LarkConfig{
			AppID:          c.Lark.AppID,
			AppSecret:      c.Lark.AppSecret,
			ReceiveIDType:  c.Lark.ReceiveIDType,
			RequestTimeout: c.Lark.RequestTimeout,
		},
		Redis: container.RedisConfig{
			Address:      c.Redis.Address,
			Password:     c.Redis.Password,
			DB:           c.Redis.DB,
			KeyPrefix:    c.Redis.KeyPrefix,
			DialTimeout:  c.Redis.DialTimeout,
			ReadTimeout:  c.Redis.ReadTimeout,
			WriteTimeout: c.Redis.WriteTimeout,
		},
		Delivery: container.DeliveryConfig{
			MaxAttempts:      c.Notification.MaxAttempts,
			RetryAttempts:    c.Notification.RetryAttempts,
			RetryDelay:       c.Notification.RetryDelay,
			BatchSize:        c.Notification.BatchSize,
			BreakerThreshold: c.Notification.BreakerThreshold,
			BreakerTimeout:   c.Notification.BreakerTimeout,
		},
		Worker: container.WorkerConfig{
			EscalationEnabled:     c.Escalation.Enabled,
			EscalationInterval:    c.Escalation.Interval,
			EscalationConcurrency: c.Escalation.Concurrency,
			EscalationLockTTL:     c.Escalation.LockTTL,
			RetentionEnabled:      c.Retention.Enabled,
			RetentionInterval:     c.Retention.Interval,
		},
	}
}
