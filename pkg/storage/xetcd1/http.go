package xetcd1

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omeyang/xetcd1/pkg/observability/xlog"
	"github.com/omeyang/xetcd1/pkg/observability/xmetrics"
)

const (
	// maxResponseSize 最大响应体大小（10MB）。
	// 防止异常响应导致内存溢出。
	maxResponseSize = 10 * 1024 * 1024

	keysPrefix  = "/v1/keys"
	watchPrefix = "/v1/watch"

	machinesPath = "/v1/machines"
	leaderPath   = "/v1/leader"
)

// 观测属性。
const (
	metricsComponent = "xetcd1"

	attrHTTPMethod = "http.method"
	attrHTTPPath   = "http.path"
)

// doer 定义 HTTP 请求执行接口，用于依赖注入和测试。
// *http.Client 实现了此接口。
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// 确保 *http.Client 实现 doer 接口（编译时检查）
var _ doer = (*http.Client)(nil)

//go:generate mockgen -source=http.go -destination=mock_doer_test.go -package=xetcd1 -mock_names=doer=MockDoer

// opRequest 描述一次 v1 API 请求。
type opRequest struct {
	// op 操作名，用于观测指标和日志。
	op string

	// method HTTP 方法。
	method string

	// path 已编码的请求路径（不含 endpoint），如 "/v1/keys/foo"。
	path string

	// form POST 表单参数，nil 表示无请求体。
	form url.Values

	// noTimeout 跳过 Config.Timeout（Watch 长轮询专用）。
	noTimeout bool
}

// do 执行一次请求并返回完整响应体。
// 所有操作共用此路径：前置检查、超时控制、观测埋点、响应大小限制。
func (c *Client) do(ctx context.Context, r opRequest) (data []byte, err error) {
	if err := c.checkPreconditions(ctx); err != nil {
		return nil, err
	}

	endpoint := c.Endpoint()
	requestURL := endpoint + r.path

	// 路径类别（/v1/keys 等）而非完整路径，避免观测指标高基数
	ctx, span := xmetrics.Start(ctx, c.observer, xmetrics.SpanOptions{
		Component: metricsComponent,
		Operation: r.op,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String(attrHTTPMethod, r.method),
			xmetrics.String(attrHTTPPath, pathClass(r.path)),
		},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err})
	}()

	// 合并生命周期 context：Close 能中断在途请求（包括长轮询）
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.closeCtx, cancel)
	defer stop()

	if c.config.Timeout > 0 && !r.noTimeout {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, c.config.Timeout)
		defer timeoutCancel()
	}

	var body io.Reader
	if r.form != nil {
		body = strings.NewReader(r.form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, r.method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("xetcd1: %s: create request: %w", r.op, err)
	}
	if r.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.doer.Do(req)
	elapsed := time.Since(start)

	c.logDebug("request done",
		xlog.Operation(r.op),
		xlog.Method(r.method),
		xlog.Path(pathClass(r.path)),
		xlog.Endpoint(endpoint),
		xlog.Duration(elapsed),
		xlog.Err(err),
	)

	if err != nil {
		// Close 中断的请求统一上报 ErrClientClosed，而非底层的 context canceled
		if c.isClosed() && parent.Err() == nil {
			return nil, ErrClientClosed
		}
		return nil, fmt.Errorf("xetcd1: %s: %w", r.op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err = readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("xetcd1: %s: %w", r.op, err)
	}
	return data, nil
}

// doJSON 执行请求并解析单对象响应。
// 携带 errorCode 的响应转换为 *EtcdError，不额外包装。
func (c *Client) doJSON(ctx context.Context, r opRequest) (*response, error) {
	data, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	return parseResponse(data)
}

// readBody 读取响应体，超出 maxResponseSize 返回 ErrResponseTooLarge。
// 多读取 1 字节用于检测截断。
func readBody(body io.Reader) ([]byte, error) {
	lr := &io.LimitedReader{R: body, N: maxResponseSize + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(data) > maxResponseSize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, maxResponseSize)
	}
	return data, nil
}

// validateKey 校验并规范化键名：去掉前导斜杠后不得为空。
func validateKey(key string) (string, error) {
	normalized := strings.TrimPrefix(key, "/")
	if normalized == "" {
		return "", ErrEmptyKey
	}
	return normalized, nil
}

// keysPath 构建 /v1/keys 路径，对键逐段转义（斜杠保留为路径分隔符）。
func keysPath(key string) string {
	return escapePath(keysPrefix + "/" + key)
}

// watchPath 构建 /v1/watch 路径。
func watchPath(key string) string {
	return escapePath(watchPrefix + "/" + key)
}

func escapePath(path string) string {
	u := url.URL{Path: path}
	return u.EscapedPath()
}

// pathClass 返回路径的低基数类别，如 "/v1/keys"。
func pathClass(path string) string {
	switch {
	case strings.HasPrefix(path, keysPrefix):
		return keysPrefix
	case strings.HasPrefix(path, watchPrefix):
		return watchPrefix
	default:
		return path
	}
}
