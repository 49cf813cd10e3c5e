package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDistributedLockOwnership(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := NewDistributedLock(client, "ledger:lock:test", "a", 10*time.Second)
	b := NewDistributedLock(client, "ledger:lock:test", "b", 10*time.Second)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// 只有持有者能释放
	require.NoError(t, b.Unlock(ctx))
	assert.True(t, mr.Exists("ledger:lock:test"))

	require.NoError(t, a.Unlock(ctx))
	assert.False(t, mr.Exists("ledger:lock:test"))

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("ledger:lock:test"))
}

func TestDistributedLockGivesUp(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	holder := NewDistributedLock(client, "ledger:lock:busy", "holder", 10*time.Second)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	waiter := NewDistributedLock(client, "ledger:lock:busy", "waiter", 10*time.Second)
	err = waiter.Lock(ctx, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3))
	assert.True(t, errors.Is(err, ErrLockFailed))
}

func TestRedisOwnerLockerSerializes(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisOwnerLocker(client, 10*time.Second)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithOwnerLock(ctx, "user:u-1", func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&maxInside))
	assert.False(t, mr.Exists("ledger:lock:owner:user:u-1"))
}

func TestRedisOwnerLockerPropagatesError(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisOwnerLocker(client, 10*time.Second)

	boom := errors.New("boom")
	err := locker.WithOwnerLock(context.Background(), "vo:vo-1", func() error { return boom })
	assert.Equal(t, boom, err)
	assert.False(t, mr.Exists("ledger:lock:owner:vo:vo-1"), "lock is released after failure")
}

func TestRedisOwnerLockerTimeout(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisOwnerLocker(client, 10*time.Second)
	locker.maxWait = 50 * time.Millisecond

	require.NoError(t, mr.Set("ledger:lock:owner:user:u-1", "someone-else"))

	called := false
	err := locker.WithOwnerLock(context.Background(), "user:u-1", func() error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrLockFailed))
	assert.False(t, called)
}

func TestRedisOwnerLockerKeepsRedisError(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisOwnerLocker(client, 10*time.Second)
	mr.SetError("ERR backend unavailable")

	called := false
	err := locker.WithOwnerLock(context.Background(), "user:u-1", func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockFailed))
	assert.Contains(t, err.Error(), "backend unavailable")
	assert.False(t, called)
}

func TestNoopOwnerLocker(t *testing.T) {
	var locker OwnerLocker = NoopOwnerLocker{}
	called := false
	require.NoError(t, locker.WithOwnerLock(context.Background(), "user:u-1", func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}
