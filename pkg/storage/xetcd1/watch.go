package xetcd1

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// watchOptions Watch 选项。
type watchOptions struct {
	index    uint64
	hasIndex bool
	timeout  time.Duration
}

// WatchOption Watch 选项函数。
type WatchOption func(*watchOptions)

// WithWatchIndex 从指定的全局索引开始监视，补收历史变更。
// 设置后请求切换为 POST 并在表单中携带 index（v1 协议要求）。
func WithWatchIndex(index uint64) WatchOption {
	return func(o *watchOptions) {
		o.index = index
		o.hasIndex = true
	}
}

// WithWatchTimeout 限定本次长轮询的等待时长。
// 等待超时不是错误：Watch 返回 (nil, nil) 表示窗口内没有变更。
// 不设置时 Watch 一直阻塞到出现变更或 ctx 结束。
func WithWatchTimeout(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Watch 长轮询等待键（或其子树）的下一个变更。
//
// 对应 GET /v1/watch/{key}；携带 WithWatchIndex 时为 POST。
// 监视目录路径会捕获该子树内任意键的变更。
// Config.Timeout 对 Watch 不生效，等待时长只由 WithWatchTimeout
// 和 ctx 控制。
//
// 返回值约定：
//   - 捕获到变更: (*WatchResult, nil)
//   - WithWatchTimeout 到期: (nil, nil)
//   - ctx 取消/到期: (nil, ctx.Err() 包装后的错误)
func (c *Client) Watch(ctx context.Context, key string, opts ...WatchOption) (*WatchResult, error) {
	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}

	o := watchOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	watchCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		watchCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	r := opRequest{
		op:        "watch",
		method:    http.MethodGet,
		path:      watchPath(key),
		noTimeout: true,
	}
	if o.hasIndex {
		r.method = http.MethodPost
		r.form = url.Values{"index": []string{strconv.FormatUint(o.index, 10)}}
	}

	data, err := c.do(watchCtx, r)
	if err != nil {
		// 只有轮询自身的超时映射为"无变更"；父 ctx 的结束原样上抛
		if o.timeout > 0 && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}

	resp, err := parseResponse(data)
	if err != nil {
		return nil, err
	}
	return resp.toWatchResult(), nil
}
