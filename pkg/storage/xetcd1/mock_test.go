package xetcd1

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// noopDoer 最小化的 doer 实现，仅用于前置条件测试。
// Do 直接 panic，因为这些测试不应走到实际请求路径。
type noopDoer struct{}

func (noopDoer) Do(*http.Request) (*http.Response, error) {
	panic("noopDoer.Do should not be called")
}

// newNoopClient 构建一个不会发出真实请求的客户端。
func newNoopClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(DefaultConfig(), WithLogger(nil))
	require.NoError(t, err)
	c.doer = noopDoer{}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// newMockClient 构建以 MockDoer 为传输层的客户端。
func newMockClient(t *testing.T, d doer) *Client {
	t.Helper()
	c, err := NewClient(DefaultConfig(), WithLogger(nil))
	require.NoError(t, err)
	c.doer = d
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// clientForURL 构建指向 httptest 服务端的客户端。
func clientForURL(tb testing.TB, rawURL string, opts ...Option) *Client {
	tb.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(tb, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(tb, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(tb, err)

	cfg := &Config{Host: host, Port: port, Timeout: 5 * time.Second}
	all := append([]Option{WithLogger(nil)}, opts...)
	c, err := NewClient(cfg, all...)
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = c.Close() })
	return c
}

// capturedRequest 记录一次请求的关键线协议字段。
type capturedRequest struct {
	method      string
	path        string
	contentType string
	form        url.Values
}

// captureServer 启动回放固定响应体的服务端，返回读取最近一次
// 请求记录的函数。用于验证线协议细节（方法、路径转义、表单编码）。
func captureServer(t *testing.T, respBody string) (*httptest.Server, func() capturedRequest) {
	t.Helper()

	var mu sync.Mutex
	var last capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		last = capturedRequest{
			method:      r.Method,
			path:        r.URL.EscapedPath(),
			contentType: r.Header.Get("Content-Type"),
			form:        r.PostForm,
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, respBody)
	}))
	t.Cleanup(srv.Close)

	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}
