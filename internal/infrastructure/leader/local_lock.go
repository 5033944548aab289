package leader

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/controlled-docs/internal/application/port"
)

// LocalLock is the single-process LeaderLock used when Redis is not configured
type LocalLock struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

// NewLocalLock creates an in-process lease table
func NewLocalLock() *LocalLock {
	return &LocalLock{
		leases: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (l *LocalLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.leases[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.leases[key] = now.Add(ttl)
	return true, nil
}

func (l *LocalLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, key)
	return nil
}

var _ port.LeaderLock = (*LocalLock)(nil)
