package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
)

// ExpiredArchiver archives released versions past their retention period
type ExpiredArchiver interface {
	ArchiveExpired(ctx context.Context, now time.Time) (int, error)
}

// RetentionWorkerConfig holds configuration for the retention sweep
type RetentionWorkerConfig struct {
	Interval time.Duration
	LockKey  string
	LockTTL  time.Duration
}

// DefaultRetentionWorkerConfig returns default configuration
func DefaultRetentionWorkerConfig() RetentionWorkerConfig {
	return RetentionWorkerConfig{
		Interval: 24 * time.Hour,
		LockKey:  "retention",
		LockTTL:  36 * time.Hour,
	}
}

// RetentionWorker archives expired releases once per interval
type RetentionWorker struct {
	*leaderLoop
	archiver ExpiredArchiver
}

// NewRetentionWorker creates a new retention worker
func NewRetentionWorker(cfg RetentionWorkerConfig, archiver ExpiredArchiver, leader port.LeaderLock, logger *zap.Logger) *RetentionWorker {
	def := DefaultRetentionWorkerConfig()
	if cfg.LockKey == "" {
		cfg.LockKey = def.LockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval + cfg.Interval/2
	}

	w := &RetentionWorker{archiver: archiver}
	w.leaderLoop = &leaderLoop{
		name:     "RetentionWorker",
		interval: cfg.Interval,
		lockKey:  cfg.LockKey,
		lockTTL:  cfg.LockTTL,
		leader:   leader,
		tick:     w.tick,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("retention"),
	}
	return w
}

func (w *RetentionWorker) tick(ctx context.Context, now time.Time) error {
	n, err := w.archiver.ArchiveExpired(ctx, now)
	if n > 0 {
		w.logger.Info("Archived expired releases", zap.Int("count", n))
	}
	if err != nil {
		return fmt.Errorf("archive expired: %w", err)
	}
	return nil
}
