package xetcd1

import (
	"errors"
	"fmt"
)

// v1 协议的服务端错误码。
const (
	// ErrCodeKeyNotFound 键不存在（get/delete/list 不存在的键）。
	ErrCodeKeyNotFound = 100

	// ErrCodeTestFailed test-and-set 的 prevValue 与当前值不符。
	ErrCodeTestFailed = 101

	// ErrCodeNotFile 对目录执行了只能作用于叶子键的操作。
	ErrCodeNotFile = 102
)

// 错误定义。
var (
	// ErrNilConfig 配置为空。
	ErrNilConfig = errors.New("xetcd1: config is nil")

	// ErrInvalidConfig 配置字段无效。
	ErrInvalidConfig = errors.New("xetcd1: invalid config")

	// ErrClientClosed 客户端已关闭。
	ErrClientClosed = errors.New("xetcd1: client is closed")

	// ErrEmptyKey 键名为空。
	ErrEmptyKey = errors.New("xetcd1: key is empty")

	// ErrResponseTooLarge 响应体超过大小上限。
	ErrResponseTooLarge = errors.New("xetcd1: response body too large")

	// ErrNoMachines 服务端返回的机器列表为空。
	ErrNoMachines = errors.New("xetcd1: machine list is empty")

	// ErrTooManyRetries WatchStream 连续失败次数超过上限。
	ErrTooManyRetries = errors.New("xetcd1: watch stream retries exhausted")

	// ErrKeyNotFound 键不存在，对应服务端错误码 100。
	ErrKeyNotFound = errors.New("xetcd1: key not found")

	// ErrTestFailed test-and-set 条件不满足，对应服务端错误码 101。
	ErrTestFailed = errors.New("xetcd1: test-and-set condition failed")

	// ErrNotFile 目标键是目录，对应服务端错误码 102。
	ErrNotFile = errors.New("xetcd1: key is not a file")
)

// EtcdError 服务端业务错误。
// 任何携带 errorCode 字段的响应体都会转换为此类型，
// 传输层错误（连接失败、超时、响应解析失败）不属于此类。
type EtcdError struct {
	// Code 服务端错误码，如 100（键不存在）。
	Code int

	// Message 服务端错误描述。
	Message string

	// Cause 错误的补充说明，通常是触发错误的键或 prevValue。
	// 服务端未提供时为空字符串。
	Cause string
}

// Error 实现 error 接口。
func (e *EtcdError) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("xetcd1: server error %d: %s (cause: %s)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("xetcd1: server error %d: %s", e.Code, e.Message)
}

// Is 将已知错误码映射到哨兵错误，让调用方用 errors.Is 判断
// 而不必解包 *EtcdError 检查 Code 字段。
func (e *EtcdError) Is(target error) bool {
	switch target {
	case ErrKeyNotFound:
		return e.Code == ErrCodeKeyNotFound
	case ErrTestFailed:
		return e.Code == ErrCodeTestFailed
	case ErrNotFile:
		return e.Code == ErrCodeNotFile
	default:
		return false
	}
}

// IsKeyNotFound 检查错误是否为键不存在。
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsTestFailed 检查错误是否为 test-and-set 条件不满足。
func IsTestFailed(err error) bool {
	return errors.Is(err, ErrTestFailed)
}

// IsNotFile 检查错误是否为目标键是目录。
func IsNotFile(err error) bool {
	return errors.Is(err, ErrNotFile)
}

// IsClientClosed 检查错误是否为客户端已关闭。
func IsClientClosed(err error) bool {
	return errors.Is(err, ErrClientClosed)
}
