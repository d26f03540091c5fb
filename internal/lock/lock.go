// Package lock serialises imports and mapping replacement per connection.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLeaseLost is returned by Unlock when the lock expired or was taken over
// before release.
var ErrLeaseLost = errors.New("lock lease lost before release")

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker grants exclusive per-connection leases. Lock fails fast with
// domain.ErrConnectionLocked when the connection is already held.
type Locker interface {
	Lock(ctx context.Context, connectionID int64) (Unlock, error)
}

// Key is the lock key for a connection.
func Key(connectionID int64) string {
	return fmt.Sprintf("offer-importer:lock:connection:%d", connectionID)
}

// RedisClient is the subset of *redis.Client the locker uses.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds leases in Redis so api-service and worker-service
// instances exclude each other.
type RedisLocker struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a Redis-backed locker. ttl bounds how long a crashed
// holder can block a connection.
func NewRedisLocker(client RedisClient, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// Lock acquires the connection lease.
func (l *RedisLocker) Lock(ctx context.Context, connectionID int64) (Unlock, error) {
	key := Key(connectionID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to acquire lock %s: %w", key, err))
	}
	if !ok {
		return nil, domain.ErrConnectionLocked
	}

	l.logger.Debug("Lock acquired", slog.String("key", key), slog.Duration("ttl", l.ttl))

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		if n == 0 {
			return ErrLeaseLost
		}
		l.logger.Debug("Lock released", slog.String("key", key))
		return nil
	}, nil
}

// LocalLocker is an in-process Locker used when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[int64]struct{})}
}

// Lock acquires the connection lease.
func (l *LocalLocker) Lock(_ context.Context, connectionID int64) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[connectionID]; ok {
		return nil, domain.ErrConnectionLocked
	}
	l.held[connectionID] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		released := false
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, connectionID)
			l.mu.Unlock()
			released = true
		})
		if !released {
			return ErrLeaseLost
		}
		return nil
	}, nil
}
