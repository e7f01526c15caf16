package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 Key 常量，保持跨包字段名一致。
// 参考 OpenTelemetry Semantic Conventions。
const (
	// KeyError 错误字段的标准 key
	KeyError = "error"

	// KeyDuration 耗时字段的标准 key
	KeyDuration = "duration"

	// KeyCount 计数字段的标准 key
	KeyCount = "count"

	// KeyMethod HTTP 方法字段的标准 key
	KeyMethod = "method"

	// KeyPath 请求路径字段的标准 key
	KeyPath = "path"

	// KeyStatusCode HTTP 状态码字段的标准 key
	KeyStatusCode = "status_code"

	// KeyComponent 组件名称字段的标准 key
	KeyComponent = "component"

	// KeyOperation 操作名称字段的标准 key
	KeyOperation = "operation"

	// KeyKey etcd 键名字段的标准 key
	KeyKey = "key"

	// KeyEndpoint 服务端地址字段的标准 key
	KeyEndpoint = "endpoint"
)

// Err 创建错误属性。
// 记录错误的标准方式，使用统一的 key "error"；err 为 nil 时
// 返回空属性（会被 slog 忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性。
func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d)
}

// Component 创建组件名称属性。
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 创建操作名称属性。
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Count 创建计数属性。
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// StatusCode 创建 HTTP 状态码属性。
func StatusCode(code int) slog.Attr {
	return slog.Int(KeyStatusCode, code)
}

// Method 创建 HTTP 方法属性。
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path 创建请求路径属性。
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Key 创建 etcd 键名属性。
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Endpoint 创建服务端地址属性。
func Endpoint(addr string) slog.Attr {
	return slog.String(KeyEndpoint, addr)
}
