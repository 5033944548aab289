package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Minute, cfg.Lifecycle.LockTTL)
	assert.Equal(t, 24*time.Hour, cfg.Escalation.Interval)
	assert.True(t, cfg.Escalation.Enabled)
	assert.Equal(t, 5, cfg.Notification.MaxAttempts)
	assert.Equal(t, "open_id", cfg.Lark.ReceiveIDType)
	assert.Equal(t, 10*time.Second, cfg.Lark.RequestTimeout)
	assert.False(t, cfg.Lark.Enabled())
	assert.Empty(t, cfg.Redis.Address)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  path: /var/lib/docs/docs.db
lifecycle:
  lock_ttl: 45m
escalation:
  interval: 1h
  concurrency: 8
lark:
  app_id: cli_file
  receive_id_type: email
`)
	t.Setenv("LARK_APP_SECRET", "from-env")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("CDOCS_LOGGER_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/docs/docs.db", cfg.Database.Path)
	assert.Equal(t, 45*time.Minute, cfg.Lifecycle.LockTTL)
	assert.Equal(t, time.Hour, cfg.Escalation.Interval)
	assert.Equal(t, 8, cfg.Escalation.Concurrency)
	assert.Equal(t, "cli_file", cfg.Lark.AppID)
	assert.Equal(t, "from-env", cfg.Lark.AppSecret)
	assert.True(t, cfg.Lark.Enabled())
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no database", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"no storage", func(c *Config) { c.Storage.BaseDir = "" }, "storage.base_dir"},
		{"zero lock ttl", func(c *Config) { c.Lifecycle.LockTTL = 0 }, "lifecycle.lock_ttl"},
		{"zero escalation interval", func(c *Config) { c.Escalation.Interval = 0 }, "escalation.interval"},
		{"disabled escalation ignores interval", func(c *Config) {
			c.Escalation.Enabled = false
			c.Escalation.Interval = 0
		}, ""},
		{"zero retention interval", func(c *Config) { c.Retention.Interval = 0 }, "retention.interval"},
		{"zero max attempts", func(c *Config) { c.Notification.MaxAttempts = 0 }, "notification.max_attempts"},
		{"half lark credentials", func(c *Config) { c.Lark.AppID = "cli_x" }, "set together"},
		{"bad receive id type", func(c *Config) { c.Lark.ReceiveIDType = "chat_id" }, "receive_id_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
