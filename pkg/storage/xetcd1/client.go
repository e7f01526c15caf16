package xetcd1

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xetcd1/pkg/observability/xlog"
	"github.com/omeyang/xetcd1/pkg/observability/xmetrics"
)

// Client etcd v1 客户端。
//
// Client 是并发安全的，可以被多个 goroutine 同时使用。
// endpoint 与机器列表缓存由读写锁保护，其余字段创建后只读。
type Client struct {
	doer       doer // HTTP 执行接口，测试时注入 mock
	httpClient *http.Client
	config     *Config
	logger     *slog.Logger
	observer   xmetrics.Observer

	mu       sync.RWMutex
	endpoint string
	machines []string
	sf       singleflight.Group

	closed atomic.Bool
	// closeCtx 是客户端生命周期 context：Close 取消它以中断所有
	// 在途请求（包括 Watch 长轮询）和后台循环。
	// 设计决策: 用 context 而非单独的 chan struct{}，
	// 使它能通过 context.AfterFunc 合并进每个请求的 context。
	closeCtx    context.Context
	closeCancel context.CancelFunc
	wg          sync.WaitGroup
}

// NewClient 创建 etcd v1 客户端。
//
// 参数：
//   - config: 客户端配置，nil 返回 ErrNilConfig
//   - opts: 可选的运行时注入（HTTP 客户端、日志器、观测器）
//
// endpoint 在创建时由 Host/Port/证书配置确定，此后仅 Sync
// 在 FollowLeader 模式下可能调整；详见 Sync。
func NewClient(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	cfg := config.applyDefaults()

	httpClient := o.httpClient
	if httpClient == nil {
		tlsCfg, err := cfg.tlsConfig()
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{
			// 不设置 Client.Timeout：请求超时由 context 按操作控制，
			// Watch 长轮询必须允许无限期阻塞。
			Transport: &http.Transport{
				TLSClientConfig:     tlsCfg,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	closeCtx, closeCancel := context.WithCancel(context.Background())

	c := &Client{
		doer:        httpClient,
		httpClient:  httpClient,
		config:      cfg,
		logger:      o.buildLogger(),
		observer:    o.observer,
		endpoint:    cfg.baseURL(),
		closeCtx:    closeCtx,
		closeCancel: closeCancel,
	}

	if cfg.SyncOnStart {
		ctx, cancel := context.WithTimeout(closeCtx, cfg.Timeout)
		if err := c.Sync(ctx); err != nil {
			c.logWarn("initial sync failed", xlog.Err(err))
		}
		cancel()
	}

	if cfg.AutoSyncInterval > 0 {
		c.wg.Add(1)
		go c.autoSyncLoop()
	}

	return c, nil
}

// Endpoint 返回当前使用的 endpoint，如 "http://127.0.0.1:4001"。
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// Endpoints 返回最近一次 Machines/Sync 缓存的集群机器列表副本。
// 不发起网络请求；从未同步过时返回 nil。
func (c *Client) Endpoints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.machines)
}

// Close 关闭客户端：中断在途请求、停止后台循环并释放空闲连接。
// 幂等，关闭后客户端不可再使用。
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.closeCancel()
	c.wg.Wait()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

// isClosed 检查客户端是否已关闭。
func (c *Client) isClosed() bool {
	return c.closed.Load()
}

// checkPreconditions 检查操作前置条件：客户端未关闭且 context 存活。
func (c *Client) checkPreconditions(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return ctx.Err()
}

// setEndpoint 替换当前 endpoint，返回替换前的值。
func (c *Client) setEndpoint(endpoint string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.endpoint
	c.endpoint = endpoint
	return old
}

// storeMachines 缓存集群机器列表。
func (c *Client) storeMachines(machines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.machines = machines
}

// 日志辅助：logger 为 nil（WithLogger(nil) 显式禁用）时静默。

func (c *Client) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
