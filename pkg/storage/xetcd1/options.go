package xetcd1

import (
	"log/slog"
	"net/http"

	"github.com/omeyang/xetcd1/pkg/observability/xmetrics"
)

// options 内部选项结构。
// 区分可序列化配置（Config）与运行时注入（Option）：
// HTTP 客户端、日志器、观测器无法从配置文件反序列化，走选项注入。
type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	loggerSet  bool
	observer   xmetrics.Observer
}

// defaultOptions 返回默认选项。
func defaultOptions() *options {
	return &options{
		observer: xmetrics.NoopObserver{},
	}
}

// buildLogger 返回生效的日志器。
// 未调用 WithLogger 时使用 slog.Default()；
// 显式传入 nil 表示禁用日志（返回 nil，由调用点做 nil 守卫）。
func (o *options) buildLogger() *slog.Logger {
	if !o.loggerSet {
		return slog.Default()
	}
	return o.logger
}

// Option 定义客户端配置选项。
type Option func(*options)

// WithHTTPClient 使用自定义 HTTP 客户端，替换内部构建的传输层。
// 设置后 Config 中的证书字段不再生效，TLS 由调用方的客户端自行配置。
// 注意自定义客户端不应设置 http.Client.Timeout，否则 Watch 长轮询
// 会被底层超时中断；请求超时已由 Config.Timeout 通过 context 控制。
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithLogger 设置自定义 Logger。
// 传入 nil 将禁用日志输出。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
		o.loggerSet = true
	}
}

// WithObserver 设置可观测性接口，记录每次请求的指标和追踪信息。
// 默认为 NoopObserver（零开销）。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}
