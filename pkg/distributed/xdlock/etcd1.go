package xdlock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"

	"github.com/omeyang/xetcd1/pkg/storage/xetcd1"
)

// unlockedValue 未上锁哨兵。锁键持有此值时表示无人持锁。
// v1 协议拒绝空表单值（错误码 200），哨兵必须非空；
// 令牌总是携带 ":" 分隔符，与哨兵不会混淆。
const unlockedValue = "unlocked"

// unlockCleanupTimeout 调用方 ctx 已失效时，Unlock 使用的独立清理超时。
const unlockCleanupTimeout = 5 * time.Second

// =============================================================================
// 工厂实现
// =============================================================================

// etcd1Locker 实现 Locker 接口，锁状态存放在 etcd v1 键上。
type etcd1Locker struct {
	client   *xetcd1.Client
	defaults options
	closed   atomic.Bool
}

// New 创建分布式锁工厂。
//
// client 必须是已初始化的 xetcd1 客户端，其生命周期由调用者管理。
// opts 构成工厂级默认配置，可被 TryLock/Lock 的选项逐次覆盖。
func New(client *xetcd1.Client, opts ...Option) (Locker, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &etcd1Locker{client: client, defaults: o}, nil
}

// TryLock 非阻塞式获取锁，返回 LockHandle。
func (l *etcd1Locker) TryLock(ctx context.Context, key string, opts ...Option) (LockHandle, error) {
	if l.closed.Load() {
		return nil, ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	o := l.defaults
	for _, opt := range opts {
		opt(&o)
	}
	return l.tryLock(ctx, key, o)
}

// tryLock 执行一次获取尝试。
//
// 获取即 TestAndSet(未上锁哨兵 -> 令牌)。键不存在（首次使用或随 TTL
// 过期删除）时先写入哨兵初始化，再重试一次。
func (l *etcd1Locker) tryLock(ctx context.Context, key string, o options) (LockHandle, error) {
	fullKey := o.KeyPrefix + key
	token := o.Identity + ":" + uuid.New().String()

	_, err := l.client.TestAndSet(ctx, fullKey, unlockedValue, token, o.TTL)
	if xetcd1.IsKeyNotFound(err) {
		if _, initErr := l.client.Set(ctx, fullKey, unlockedValue, 0); initErr != nil {
			return nil, fmt.Errorf("xdlock: init lock key %q: %w", fullKey, initErr)
		}
		_, err = l.client.TestAndSet(ctx, fullKey, unlockedValue, token, o.TTL)
		if xetcd1.IsKeyNotFound(err) {
			// 初始化后仍缺失说明键被并发删除，按竞争失败处理
			return nil, nil
		}
	}
	if xetcd1.IsTestFailed(err) {
		return nil, nil // 被其他持有者占用
	}
	if err != nil {
		return nil, fmt.Errorf("xdlock: acquire %q: %w", fullKey, err)
	}

	return &etcd1LockHandle{
		locker:  l,
		fullKey: fullKey,
		token:   token,
		ttl:     o.TTL,
	}, nil
}

// Lock 阻塞式获取锁，返回 LockHandle。
//
// 使用指数退避加随机抖动的重试策略，避免多个等待者同步唤醒。
func (l *etcd1Locker) Lock(ctx context.Context, key string, opts ...Option) (LockHandle, error) {
	if l.closed.Load() {
		return nil, ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	o := l.defaults
	for _, opt := range opts {
		opt(&o)
	}

	retryOpts := []retry.Option{
		retry.Context(ctx),
		retry.Delay(o.RetryDelay),
		retry.MaxDelay(o.RetryMaxDelay),
		retry.MaxJitter(o.RetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	}
	if o.Tries > 0 {
		retryOpts = append(retryOpts, retry.Attempts(uint(o.Tries)))
	} else {
		retryOpts = append(retryOpts, retry.UntilSucceeded())
	}

	var handle LockHandle
	err := retry.New(retryOpts...).Do(func() error {
		h, tryErr := l.tryLock(ctx, key, o)
		if tryErr != nil {
			// 客户端已关闭或锁键被目录占用都不可能通过重试恢复
			if errors.Is(tryErr, xetcd1.ErrClientClosed) || xetcd1.IsNotFile(tryErr) {
				return retry.Unrecoverable(tryErr)
			}
			return tryErr
		}
		if h == nil {
			return ErrLockHeld
		}
		handle = h
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrLockFailed, err)
	}
	return handle, nil
}

// Close 关闭工厂。
// 不关闭传入的 xetcd1 客户端，客户端的生命周期由调用者管理。
func (l *etcd1Locker) Close(_ context.Context) error {
	l.closed.Store(true)
	return nil
}

// Health 健康检查。
// 委托给底层客户端的服务端探测。
func (l *etcd1Locker) Health(ctx context.Context) error {
	if l.closed.Load() {
		return ErrFactoryClosed
	}
	return l.client.Health(ctx)
}

// =============================================================================
// LockHandle 实现
// =============================================================================

// etcd1LockHandle 实现 LockHandle 接口。
// 每次成功获取锁时创建，封装本次获取的唯一令牌。
type etcd1LockHandle struct {
	locker  *etcd1Locker
	fullKey string
	token   string
	ttl     time.Duration
}

// Unlock 释放锁：把令牌换回未上锁哨兵。
//
// 设计决策: 允许在工厂关闭后解锁，避免锁悬挂等待 TTL 到期。
// 工厂的 Close 仅设置逻辑标志，底层客户端仍由调用者管理。
func (h *etcd1LockHandle) Unlock(ctx context.Context) error {
	// 调用方 ctx 已失效时换用独立清理上下文，解锁尽力完成
	if ctx == nil || ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), unlockCleanupTimeout)
		defer cancel()
	}

	_, err := h.locker.client.TestAndSet(ctx, h.fullKey, h.token, unlockedValue, 0)
	if xetcd1.IsTestFailed(err) || xetcd1.IsKeyNotFound(err) {
		return ErrNotLocked
	}
	if err != nil {
		return fmt.Errorf("xdlock: unlock %q: %w", h.fullKey, err)
	}
	return nil
}

// Extend 续期锁：令牌换令牌，刷新 TTL 的同时校验所有权。
func (h *etcd1LockHandle) Extend(ctx context.Context) error {
	_, err := h.locker.client.TestAndSet(ctx, h.fullKey, h.token, h.token, h.ttl)
	if xetcd1.IsTestFailed(err) || xetcd1.IsKeyNotFound(err) {
		return ErrNotLocked
	}
	if err != nil {
		return fmt.Errorf("xdlock: extend %q: %w", h.fullKey, err)
	}
	return nil
}

// Key 返回锁的完整键（含前缀）。
func (h *etcd1LockHandle) Key() string {
	return h.fullKey
}

// 接口实现的编译时检查
var (
	_ Locker     = (*etcd1Locker)(nil)
	_ LockHandle = (*etcd1LockHandle)(nil)
)
