package xetcd1

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/omeyang/xetcd1/pkg/observability/xlog"
)

// WatchEvent WatchStream 推送的单个事件。
// Err 非 nil 表示流因重试耗尽而终止，随后通道关闭。
type WatchEvent struct {
	// Result 捕获到的变更，错误事件中为 nil。
	Result *WatchResult

	// Err 终止错误。正常事件中为 nil。
	Err error
}

// DefaultStreamBufferSize 默认事件通道缓冲区大小。
const DefaultStreamBufferSize = 16

// StreamConfig WatchStream 的重连配置。
type StreamConfig struct {
	// InitialBackoff 首次重连前的退避时间，默认 1 秒。
	InitialBackoff time.Duration

	// MaxBackoff 退避时间上限，默认 30 秒。
	MaxBackoff time.Duration

	// MaxRetries 连续失败的重试上限，0 表示无限重试。
	// 超限后推送携带 ErrTooManyRetries 的事件并关闭通道。
	MaxRetries int

	// BufferSize 事件通道缓冲区大小，默认 DefaultStreamBufferSize。
	BufferSize int
}

// DefaultStreamConfig 返回默认的重连配置。
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BufferSize:     DefaultStreamBufferSize,
	}
}

// normalize 把零值字段换成默认值（负值同样视为未设置）。
func (cfg StreamConfig) normalize() StreamConfig {
	def := DefaultStreamConfig()
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	return cfg
}

// WatchStream 持续监视并把变更推送到通道。
//
// 内部 goroutine 循环调用 Watch，每次从上一个变更的 Index+1 续接，
// 不漏掉连续变更。请求失败时按指数退避（带 ±20% 抖动）重连；
// 连续失败超过 MaxRetries 时推送错误事件后关闭通道。
// ctx 结束或客户端 Close 时通道关闭。
//
// opts 中的 WithWatchIndex 指定首次监视的起点；
// WithWatchTimeout 限定单次轮询时长，超时轮询不产生事件、不计入失败。
func (c *Client) WatchStream(ctx context.Context, key string, cfg StreamConfig, opts ...WatchOption) (<-chan WatchEvent, error) {
	if err := c.checkPreconditions(ctx); err != nil {
		return nil, err
	}
	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}

	o := watchOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.normalize()

	events := make(chan WatchEvent, cfg.BufferSize)

	c.wg.Add(1)
	go c.runWatchStream(ctx, key, cfg, o, events)

	return events, nil
}

// runWatchStream 是 WatchStream 的主循环。
func (c *Client) runWatchStream(ctx context.Context, key string, cfg StreamConfig, o watchOptions, events chan<- WatchEvent) {
	defer c.wg.Done()
	defer close(events)

	// 合并生命周期 context：Close 时中断在途长轮询
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.closeCtx, cancel)
	defer stop()

	index := o.index
	hasIndex := o.hasIndex
	backoff := cfg.InitialBackoff
	retries := 0

	for {
		if streamCtx.Err() != nil || c.isClosed() {
			return
		}

		opts := make([]WatchOption, 0, 2)
		if hasIndex {
			opts = append(opts, WithWatchIndex(index))
		}
		if o.timeout > 0 {
			opts = append(opts, WithWatchTimeout(o.timeout))
		}

		result, err := c.Watch(streamCtx, key, opts...)
		switch {
		case err != nil:
			if streamCtx.Err() != nil || c.isClosed() {
				return
			}
			retries++
			if cfg.MaxRetries > 0 && retries > cfg.MaxRetries {
				c.sendStreamEvent(streamCtx, events, WatchEvent{
					Err: fmt.Errorf("%w: last error: %w", ErrTooManyRetries, err),
				})
				return
			}
			c.logWarn("watch stream reconnecting",
				xlog.Key(key),
				xlog.Count(int64(retries)),
				xlog.Duration(backoff),
				xlog.Err(err),
			)
			sleepWithCancel(streamCtx, backoff)
			backoff = nextBackoff(backoff, cfg.MaxBackoff)

		case result == nil:
			// 单次轮询超时：窗口内无变更，直接进入下一轮

		default:
			retries = 0
			backoff = cfg.InitialBackoff
			if !c.sendStreamEvent(streamCtx, events, WatchEvent{Result: result}) {
				return
			}
			index = result.Index + 1
			hasIndex = true
		}
	}
}

// sendStreamEvent 推送事件，返回 false 表示流应当终止。
func (c *Client) sendStreamEvent(ctx context.Context, events chan<- WatchEvent, ev WatchEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleepWithCancel 可中断的退避睡眠。
func sleepWithCancel(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// nextBackoff 计算下一次退避时间：指数增长、±20% 抖动、封顶。
// 设计决策: 抖动防止惊群——集群重启后大量客户端同时丢失长轮询，
// 确定性退避会让它们在同一时刻重连，对刚恢复的服务端造成突发压力。
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := addJitter(current * 2)
	return min(next, maxBackoff)
}

// 随机浮点数常量：53 位尾数生成 [0,1) 均匀分布。
const (
	jitterFloatBits  = 53
	jitterFloatScale = 1.0 / (1 << jitterFloatBits)
)

// addJitter 为退避时间添加 ±20% 的随机抖动。
// crypto/rand 读取失败时返回原值（Go 1.22+ 平台上实际不会发生）。
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return d
	}
	r := float64(binary.LittleEndian.Uint64(buf[:])>>11) * jitterFloatScale
	// r ∈ [0, 1)，映射到 [-0.2, +0.2)
	return d + time.Duration(float64(d)*(r*0.4-0.2))
}
