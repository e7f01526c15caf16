package xdlock

import "errors"

// 预定义错误。
// 使用 errors.Is 进行错误匹配，例如：
//
//	if errors.Is(err, xdlock.ErrLockFailed) {
//	    // 重试耗尽仍未获取到锁
//	}
var (
	// ErrLockHeld 锁被其他持有者占用。
	//
	// 在正常使用中，TryLock 检测到锁被占用后返回 (nil, nil)，
	// 业务代码通常不会直接看到此错误；阻塞式 Lock 在重试耗尽时
	// 以此错误作为 ErrLockFailed 的底层原因。
	ErrLockHeld = errors.New("xdlock: lock is held by another owner")

	// ErrLockFailed 获取锁失败。
	// 阻塞式 Lock 重试耗尽仍未获取到锁时返回此错误。
	ErrLockFailed = errors.New("xdlock: failed to acquire lock")

	// ErrNotLocked 锁未被持有。
	// Unlock 或 Extend 时发现令牌已过期、被释放或被其他获取覆盖。
	ErrNotLocked = errors.New("xdlock: not locked")

	// ErrNilClient 客户端为空。
	// 传入 nil 客户端时返回此错误。
	ErrNilClient = errors.New("xdlock: client is nil")

	// ErrFactoryClosed 工厂已关闭。
	// 在已关闭的工厂上创建锁时返回此错误。
	ErrFactoryClosed = errors.New("xdlock: factory is closed")

	// ErrEmptyKey 锁 key 为空。
	// key 为空字符串或仅含空白时返回此错误。
	ErrEmptyKey = errors.New("xdlock: key must not be empty")
)
