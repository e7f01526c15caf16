package xdlock

import "context"

// =============================================================================
// LockHandle - 锁操作接口
// =============================================================================

// LockHandle 表示一次成功的锁获取。
//
// 每次 TryLock/Lock 成功都会返回一个新的 handle，内部封装了本次获取的
// 唯一令牌。通过 handle 进行 Unlock 和 Extend 操作，确保不同获取之间
// 不会互相干扰。
//
// # 使用模式
//
//	handle, err := locker.TryLock(ctx, "my-resource", xdlock.WithTTL(5*time.Minute))
//	if err != nil {
//	    return err // 锁服务异常
//	}
//	if handle == nil {
//	    return nil // 被其他实例持有，跳过执行
//	}
//	defer handle.Unlock(ctx)
//
//	// 执行任务...
type LockHandle interface {
	// Unlock 释放锁。
	//
	// 只释放本次获取的锁，不会影响其他 goroutine 或实例持有的锁。
	// 返回 [ErrNotLocked] 表示锁已过期或被其他获取覆盖。
	//
	// 当 ctx 已取消/超时时，Unlock 会自动使用独立清理上下文（5 秒超时），
	// 确保解锁操作尽力完成，避免锁残留到 TTL 到期。
	Unlock(ctx context.Context) error

	// Extend 续期锁：刷新 TTL 并校验所有权。
	//
	// 返回值：
	//   - nil: 续期成功，锁的 TTL 已重置
	//   - [ErrNotLocked]: 锁已过期、被释放或被其他获取覆盖（所有权已丢失）
	//   - 其他错误: 续期请求失败（锁可能仍在，可重试）
	Extend(ctx context.Context) error

	// Key 返回锁的完整键（含前缀）。
	//
	// 用于日志记录等场景。
	Key() string
}

// =============================================================================
// Locker - 锁工厂接口
// =============================================================================

// Locker 定义锁工厂接口。
// 工厂复用调用方的客户端连接，并提供锁操作。
type Locker interface {
	// TryLock 非阻塞式获取锁。
	//
	// 每次调用生成唯一令牌，确保不同获取之间不会互相干扰。
	// 成功时返回 LockHandle，锁被占用时返回 (nil, nil)。
	//
	// 参数：
	//   - ctx: 上下文，用于超时控制
	//   - key: 锁标识，建议使用业务语义明确的名称
	//   - opts: 锁配置选项（如 WithTTL），在工厂默认值基础上覆盖
	//
	// 注意：handle=nil 且 err=nil 表示锁被其他实例持有，这是正常情况。
	TryLock(ctx context.Context, key string, opts ...Option) (LockHandle, error)

	// Lock 阻塞式获取锁。
	//
	// 按配置的重试策略退避重试，直到获取到锁或 context 取消/超时。
	//
	// 错误：
	//   - context.Canceled / context.DeadlineExceeded: context 结束
	//   - [ErrLockFailed]: 重试耗尽仍未获取到锁
	Lock(ctx context.Context, key string, opts ...Option) (LockHandle, error)

	// Close 关闭工厂。
	// 关闭后不应再创建新的锁实例；底层 xetcd1.Client 的生命周期由
	// 调用者管理，不会被关闭。
	//
	// 设计决策: ctx 参数当前未使用，保留以避免未来需要带超时的
	// 优雅关闭时产生破坏性 API 变更。
	Close(ctx context.Context) error

	// Health 健康检查。
	// 检查底层客户端与服务端的连通性。
	Health(ctx context.Context) error
}
