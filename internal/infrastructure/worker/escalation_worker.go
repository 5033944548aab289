package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
)

// EscalationScanner records newly crossed escalation levels
type EscalationScanner interface {
	RunOnce(ctx context.Context, now time.Time) (int, error)
}

// EscalationDeliverer sends recorded escalations to their recipients
type EscalationDeliverer interface {
	DeliverPending(ctx context.Context) (int, error)
}

// EscalationWorkerConfig holds configuration for the escalation scheduler
type EscalationWorkerConfig struct {
	Interval time.Duration
	LockKey  string
	LockTTL  time.Duration
}

// DefaultEscalationWorkerConfig returns default configuration
func DefaultEscalationWorkerConfig() EscalationWorkerConfig {
	return EscalationWorkerConfig{
		Interval: 24 * time.Hour,
		LockKey:  "escalation",
		LockTTL:  36 * time.Hour,
	}
}

// EscalationWorker periodically scans IN_REVIEW versions for overdue
// escalation levels and then drains the notification outbox.
type EscalationWorker struct {
	*leaderLoop
	scanner   EscalationScanner
	deliverer EscalationDeliverer
}

// NewEscalationWorker creates a new escalation worker
func NewEscalationWorker(
	cfg EscalationWorkerConfig,
	scanner EscalationScanner,
	deliverer EscalationDeliverer,
	leader port.LeaderLock,
	logger *zap.Logger,
) *EscalationWorker {
	def := DefaultEscalationWorkerConfig()
	if cfg.LockKey == "" {
		cfg.LockKey = def.LockKey
	}
	if cfg.LockTTL <= 0 {
		// Outlives the gap between ticks so the leader keeps its lease
		cfg.LockTTL = cfg.Interval + cfg.Interval/2
	}

	w := &EscalationWorker{
		scanner:   scanner,
		deliverer: deliverer,
	}
	w.leaderLoop = &leaderLoop{
		name:     "EscalationWorker",
		interval: cfg.Interval,
		lockKey:  cfg.LockKey,
		lockTTL:  cfg.LockTTL,
		leader:   leader,
		tick:     w.tick,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("escalation"),
	}
	return w
}

func (w *EscalationWorker) tick(ctx context.Context, now time.Time) error {
	created, err := w.scanner.RunOnce(ctx, now)
	if err != nil {
		// Records from earlier ticks can still be delivered
		w.logger.Error("Escalation scan failed", zap.Error(err))
	}

	delivered, derr := w.deliverer.DeliverPending(ctx)
	if derr != nil {
		derr = fmt.Errorf("deliver escalations: %w", derr)
	}

	if created > 0 || delivered > 0 {
		w.logger.Info("Escalation tick completed",
			zap.Int("created", created),
			zap.Int("delivered", delivered))
	}
	if err != nil {
		return fmt.Errorf("scan escalations: %w", err)
	}
	return derr
}
