package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 数据库行锁已经保证了账户和券的正确性，Redis 锁只是把同一所有者的并发
// 请求挡在事务之外，减少行锁等待和死锁重试。
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 脚本比较 value 后删除，避免误删别人的锁
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 锁持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁，按 policy 退避重试
func (l *DistributedLock) Lock(ctx context.Context, policy backoff.BackOff) error {
	op := func() error {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockFailed
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

// Unlock 释放锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// ============================================================================
// 按所有者维度的账户锁
// ============================================================================

// OwnerLocker 按所有者串行化支付/退款/充值入账
type OwnerLocker interface {
	// WithOwnerLock 持有 owner 的锁执行 fn
	WithOwnerLock(ctx context.Context, owner string, fn func() error) error
}

// RedisOwnerLocker 基于 Redis 的 OwnerLocker
type RedisOwnerLocker struct {
	client     *redis.Client
	expiration time.Duration
	maxWait    time.Duration
}

func NewRedisOwnerLocker(client *redis.Client, expiration time.Duration) *RedisOwnerLocker {
	return &RedisOwnerLocker{
		client:     client,
		expiration: expiration,
		maxWait:    5 * time.Second,
	}
}

func (l *RedisOwnerLocker) newPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = l.maxWait
	return b
}

func (l *RedisOwnerLocker) WithOwnerLock(ctx context.Context, owner string, fn func() error) error {
	key := fmt.Sprintf("ledger:lock:owner:%s", owner)
	dl := NewDistributedLock(l.client, key, uuid.NewString(), l.expiration)
	if err := dl.Lock(ctx, l.newPolicy()); err != nil {
		if errors.Is(err, ErrLockFailed) {
			return fmt.Errorf("%w: %s", ErrLockFailed, owner)
		}
		// Redis 不可用等底层错误一并带出
		return fmt.Errorf("%w: %s: %w", ErrLockFailed, owner, err)
	}
	defer func() {
		// 释放失败时依赖过期时间兜底
		_ = dl.Unlock(context.Background())
	}()
	return fn()
}

// NoopOwnerLocker 未启用 Redis 时使用，只依赖数据库行锁
type NoopOwnerLocker struct{}

func (NoopOwnerLocker) WithOwnerLock(_ context.Context, _ string, fn func() error) error {
	return fn()
}
