// Package leader grants a single active instance for background work
package leader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
)

// Config holds Redis connection configuration
type Config struct {
	Address      string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only while the key still carries our token
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock implements port.LeaderLock with SET NX PX leases
type RedisLock struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisLock connects to Redis and verifies the connection
func NewRedisLock(cfg Config, logger *zap.Logger) (*RedisLock, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	logger.Info("Redis leader lock connected", zap.String("address", cfg.Address))
	return NewRedisLockFromClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisLockFromClient creates a lock from an existing Redis client
func NewRedisLockFromClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisLock {
	return &RedisLock{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
		tokens:    make(map[string]string),
	}
}

func (l *RedisLock) prefixKey(key string) string {
	return l.keyPrefix + "leader:" + key
}

// Acquire takes or extends the lease on key for ttl
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	token, held := l.tokens[key]
	l.mu.Unlock()

	if held {
		extended, err := extendScript.Run(ctx, l.client, []string{l.prefixKey(key)}, token, ttl.Milliseconds()).Int()
		if err != nil {
			return false, fmt.Errorf("failed to extend lease %s: %w", key, err)
		}
		if extended == 1 {
			return true, nil
		}
		l.forget(key)
	}

	token = uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefixKey(key), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

// Release drops the lease on key if this instance still holds it
func (l *RedisLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, held := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if !held {
		return nil
	}

	err := releaseScript.Run(ctx, l.client, []string{l.prefixKey(key)}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}

func (l *RedisLock) forget(key string) {
	l.mu.Lock()
	delete(l.tokens, key)
	l.mu.Unlock()
}

// Close closes the Redis connection
func (l *RedisLock) Close() error {
	return l.client.Close()
}

var _ port.LeaderLock = (*RedisLock)(nil)
