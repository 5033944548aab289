package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLeader struct {
	mu       sync.Mutex
	grant    bool
	err      error
	acquired int
	released []string
}

func (f *fakeLeader) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	return f.grant, f.err
}

func (f *fakeLeader) Release(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, key)
	return nil
}

type fakeScanner struct {
	calls   atomic.Int32
	created int
	err     error
}

func (f *fakeScanner) RunOnce(ctx context.Context, now time.Time) (int, error) {
	f.calls.Add(1)
	return f.created, f.err
}

type fakeDeliverer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeDeliverer) DeliverPending(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return 0, f.err
}

type fakeArchiver struct {
	calls atomic.Int32
	last  atomic.Value
}

func (f *fakeArchiver) ArchiveExpired(ctx context.Context, now time.Time) (int, error) {
	f.calls.Add(1)
	f.last.Store(now)
	return 1, nil
}

func TestEscalationWorker_RunsWhileLeader(t *testing.T) {
	leader := &fakeLeader{grant: true}
	scanner := &fakeScanner{created: 1}
	deliverer := &fakeDeliverer{}
	w := NewEscalationWorker(EscalationWorkerConfig{Interval: 10 * time.Millisecond}, scanner, deliverer, leader, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second Start should fail")

	assert.Eventually(t, func() bool {
		return scanner.calls.Load() >= 2 && deliverer.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.Equal(t, []string{"escalation"}, leader.released)
	assert.Equal(t, "EscalationWorker", w.Name())

	// No ticks after Stop
	calls := scanner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, scanner.calls.Load())
}

func TestEscalationWorker_IdleWithoutLease(t *testing.T) {
	leader := &fakeLeader{grant: false}
	scanner := &fakeScanner{}
	deliverer := &fakeDeliverer{}
	w := NewEscalationWorker(EscalationWorkerConfig{Interval: 5 * time.Millisecond}, scanner, deliverer, leader, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool {
		leader.mu.Lock()
		defer leader.mu.Unlock()
		return leader.acquired >= 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	assert.Zero(t, scanner.calls.Load())
	assert.Zero(t, deliverer.calls.Load())
}

func TestEscalationWorker_Tick(t *testing.T) {
	t.Run("scan failure still delivers", func(t *testing.T) {
		scanner := &fakeScanner{err: errors.New("database is locked")}
		deliverer := &fakeDeliverer{}
		w := NewEscalationWorker(EscalationWorkerConfig{Interval: time.Minute}, scanner, deliverer, &fakeLeader{}, zap.NewNop())

		err := w.tick(context.Background(), time.Now())
		assert.ErrorContains(t, err, "scan escalations")
		assert.Equal(t, int32(1), deliverer.calls.Load())
	})

	t.Run("delivery failure", func(t *testing.T) {
		deliverer := &fakeDeliverer{err: errors.New("boom")}
		w := NewEscalationWorker(EscalationWorkerConfig{Interval: time.Minute}, &fakeScanner{}, deliverer, &fakeLeader{}, zap.NewNop())

		assert.ErrorContains(t, w.tick(context.Background(), time.Now()), "deliver escalations")
	})
}

func TestEscalationWorker_Defaults(t *testing.T) {
	w := NewEscalationWorker(EscalationWorkerConfig{Interval: time.Minute}, &fakeScanner{}, &fakeDeliverer{}, &fakeLeader{}, zap.NewNop())
	assert.Equal(t, "escalation", w.lockKey)
	assert.Equal(t, 90*time.Second, w.lockTTL)
}

func TestRetentionWorker_ArchivesWithUTCClock(t *testing.T) {
	leader := &fakeLeader{grant: true}
	archiver := &fakeArchiver{}
	w := NewRetentionWorker(RetentionWorkerConfig{Interval: time.Hour}, archiver, leader, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	// The first tick runs immediately on start
	assert.Eventually(t, func() bool { return archiver.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	now, ok := archiver.last.Load().(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, []string{"retention"}, leader.released)
}

func TestLeaderLoop_RejectsZeroInterval(t *testing.T) {
	w := NewRetentionWorker(RetentionWorkerConfig{}, &fakeArchiver{}, &fakeLeader{}, zap.NewNop())
	assert.Error(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager(zap.NewNop())
	archiver := &fakeArchiver{}
	m.Register(NewRetentionWorker(RetentionWorkerConfig{Interval: time.Hour}, archiver, &fakeLeader{grant: true}, zap.NewNop()))
	// Fails to start, the others still run
	m.Register(NewRetentionWorker(RetentionWorkerConfig{}, &fakeArchiver{}, &fakeLeader{}, zap.NewNop()))
	assert.Equal(t, 2, m.Count())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	assert.Eventually(t, func() bool { return archiver.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.NoError(t, m.StopAll())
}
