package lock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements SETNX and the release script against a map.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failSet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return redis.NewBoolResult(false, f.failSet)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) release(keys []string, args []interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisLocker_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	locker := NewRedisLocker(rdb, time.Minute, discardLogger())

	unlock, err := locker.Lock(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, rdb.ttls[Key(7)])

	_, err = locker.Lock(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrConnectionLocked)

	other, err := locker.Lock(ctx, 8)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))

	again, err := locker.Lock(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLocker_ReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	locker := NewRedisLocker(rdb, time.Minute, discardLogger())

	unlock, err := locker.Lock(ctx, 3)
	require.NoError(t, err)

	// Simulate expiry followed by another holder.
	rdb.values[Key(3)] = "someone-else"

	assert.ErrorIs(t, unlock(ctx), ErrLeaseLost)
	assert.Equal(t, "someone-else", rdb.values[Key(3)])
}

func TestRedisLocker_BackendErrorIsRetryable(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failSet = errors.New("connection refused")
	locker := NewRedisLocker(rdb, 0, discardLogger())

	_, err := locker.Lock(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 30*time.Minute, locker.ttl)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	unlock, err := locker.Lock(ctx, 1)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrConnectionLocked)

	require.NoError(t, unlock(ctx))
	assert.ErrorIs(t, unlock(ctx), ErrLeaseLost)

	unlock, err = locker.Lock(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestLocalLocker_Concurrent(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locker.Lock(ctx, 42); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
