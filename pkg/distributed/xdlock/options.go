package xdlock

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// validateKey 验证锁 key 是否有效。
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// =============================================================================
// 选项
// =============================================================================

// Option 定义锁配置选项。
//
// 传给 New 的选项构成工厂默认值；传给 TryLock/Lock 的选项在默认值
// 基础上覆盖本次获取。
type Option func(*options)

// options 锁配置。
type options struct {
	TTL           time.Duration // 锁的存活上界，默认 60s
	Identity      string        // 实例标识，默认 hostname:pid
	KeyPrefix     string        // 锁键前缀，默认 "xdlock/"
	RetryDelay    time.Duration // Lock 重试基础延迟，默认 200ms
	RetryMaxDelay time.Duration // Lock 重试延迟上限，默认 2s
	Tries         int           // Lock 总尝试次数，默认 32
}

// defaultOptions 返回默认的锁配置。
func defaultOptions() options {
	return options{
		TTL:           60 * time.Second,
		Identity:      defaultIdentity(),
		KeyPrefix:     "xdlock/",
		RetryDelay:    200 * time.Millisecond,
		RetryMaxDelay: 2 * time.Second,
		Tries:         32,
	}
}

// defaultIdentity 生成默认实例标识（hostname:pid）。
func defaultIdentity() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s:%d", hostname, os.Getpid())
}

// WithTTL 设置锁的存活上界。
// 默认值：60 秒。
//
// TTL 应大于业务执行时间，否则需要周期性调用 Extend() 续期。
//
// 建议：
//   - 短任务（< 10s）：TTL = 15-30s
//   - 普通任务（< 1min）：TTL = 60s（默认）
//   - 长任务（> 1min）：TTL = 120-300s 并配合 Extend
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.TTL = ttl
		}
	}
}

// WithIdentity 设置实例标识。
// 默认使用 hostname:pid。
//
// 标识会嵌入锁令牌（identity:uuid），用于日志记录和排障；
// 互斥性由每次获取独立生成的 uuid 保证，与标识无关。
func WithIdentity(identity string) Option {
	return func(o *options) {
		if identity != "" {
			o.Identity = identity
		}
	}
}

// WithKeyPrefix 设置锁键的前缀。
// 最终键 = prefix + key。
// 默认值："xdlock/"。
//
// 示例：
//
//	handle, _ := locker.TryLock(ctx, "my-resource", xdlock.WithKeyPrefix("myapp/"))
//	// 实际键: "myapp/my-resource"
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.KeyPrefix = prefix
	}
}

// WithRetryDelay 设置阻塞式 Lock 的重试基础延迟。
// 默认值：200ms。
//
// 实际延迟在此基础上做指数退避并叠加随机抖动。
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.RetryDelay = d
		}
	}
}

// WithRetryMaxDelay 设置阻塞式 Lock 的单次重试延迟上限。
// 默认值：2s。
func WithRetryMaxDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.RetryMaxDelay = d
		}
	}
}

// WithTries 设置阻塞式 Lock 的总尝试次数（包含首次尝试）。
// 默认值：32。
//
// 设置为 1 表示不重试（等价于 TryLock 加上错误返回）；
// 设置为 0 或负数表示无限重试，直到 context 结束。
func WithTries(n int) Option {
	return func(o *options) {
		o.Tries = n
	}
}
