package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
)

// leaderLoop runs tick on a fixed interval, but only while this instance
// holds the named leader lease. Ticks never overlap.
type leaderLoop struct {
	name     string
	interval time.Duration
	lockKey  string
	lockTTL  time.Duration
	leader   port.LeaderLock
	tick     func(ctx context.Context, now time.Time) error
	now      func() time.Time
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	ticks     int64
}

func (l *leaderLoop) Name() string {
	return l.name
}

func (l *leaderLoop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isRunning {
		return fmt.Errorf("%s already running", l.name)
	}
	if l.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", l.name)
	}

	var loopCtx context.Context
	loopCtx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.isRunning = true

	l.logger.Info("Worker starting",
		zap.Duration("interval", l.interval),
		zap.String("lock_key", l.lockKey))

	go l.pollLoop(loopCtx, l.done)
	return nil
}

func (l *leaderLoop) Stop() error {
	l.mu.Lock()
	if !l.isRunning {
		l.mu.Unlock()
		return nil
	}
	l.isRunning = false
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done

	// Hand the lease over instead of waiting for it to expire
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.leader.Release(ctx, l.lockKey); err != nil {
		l.logger.Warn("Failed to release leader lease", zap.Error(err))
	}

	l.logger.Info("Worker stopped", zap.Int64("ticks", l.tickCount()))
	return nil
}

func (l *leaderLoop) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.runTick(ctx)
		}
	}
}

// runTick performs one tick if the leader lease is held. Failures are logged
// and retried on the next tick.
func (l *leaderLoop) runTick(ctx context.Context) {
	ok, err := l.leader.Acquire(ctx, l.lockKey, l.lockTTL)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Error("Failed to acquire leader lease", zap.Error(err))
		}
		return
	}
	if !ok {
		l.logger.Debug("Another instance holds the leader lease")
		return
	}

	if err := l.tick(ctx, l.now()); err != nil && ctx.Err() == nil {
		l.logger.Error("Worker tick failed", zap.Error(err))
	}

	l.mu.Lock()
	l.ticks++
	l.mu.Unlock()
}

func (l *leaderLoop) tickCount() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}
