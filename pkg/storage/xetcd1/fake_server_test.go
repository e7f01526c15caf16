package xetcd1

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeEtcd 在内存里模拟 etcd v1 协议，为客户端测试提供可控的服务端。
//
// 覆盖测试所需的语义子集：键值树、通过假时钟推进的 TTL 过期
// （无需真实等待）、长轮询 watch 以及 machines/leader 文本接口。
// 协议行为以 v1 REST 接口为准：错误通过响应体里的 errorCode 表达，
// HTTP 状态码不承载语义。
type fakeEtcd struct {
	srv *httptest.Server

	mu      sync.Mutex
	offset  time.Duration // 假时钟偏移，advance 拨动
	index   uint64
	nodes   map[string]*fakeNode
	history []fakeChange
	waiters []*fakeWaiter

	machinesText string // /v1/machines 响应体；空串时返回自身地址
	leaderText   string // /v1/leader 响应体
}

type fakeNode struct {
	value     string
	index     uint64
	expiresAt time.Time // 零值表示永不过期
}

// fakeChange 是 watch 通知与历史回放共用的变更记录。
type fakeChange struct {
	action    string
	key       string
	value     string
	prevValue string
	newKey    bool
	index     uint64
}

type fakeWaiter struct {
	path string
	ch   chan fakeChange
}

func newFakeEtcd(tb testing.TB) *fakeEtcd {
	tb.Helper()
	f := &fakeEtcd{
		nodes:      make(map[string]*fakeNode),
		leaderText: "127.0.0.1:7001",
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	tb.Cleanup(f.srv.Close)
	return f
}

// client 构建指向假服务端的客户端，测试选项追加在默认之后。
func (f *fakeEtcd) client(tb testing.TB, opts ...Option) *Client {
	tb.Helper()
	return clientForURL(tb, f.srv.URL, opts...)
}

func (f *fakeEtcd) hostPort(tb testing.TB) (string, int) {
	tb.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(f.srv.URL, "http://"))
	require.NoError(tb, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(tb, err)
	return host, port
}

// advance 拨动假时钟，让带 TTL 的键过期而无需真实等待。
func (f *fakeEtcd) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset += d
}

// put 直接写入存储，绕过 HTTP 路径，用于布置测试场景。
func (f *fakeEtcd) put(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index++
	f.nodes[normalKey(key)] = &fakeNode{value: value, index: f.index}
}

func (f *fakeEtcd) setMachines(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.machinesText = text
}

func (f *fakeEtcd) setLeader(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaderText = text
}

// waiterCount 返回挂起的长轮询数量，测试用它等待 watch 请求抵达。
func (f *fakeEtcd) waiterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

func normalKey(key string) string {
	if !strings.HasPrefix(key, "/") {
		return "/" + key
	}
	return key
}

// ==================== HTTP 处理 ====================

func (f *fakeEtcd) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/machines":
		f.mu.Lock()
		text := f.machinesText
		f.mu.Unlock()
		if text == "" {
			text = f.srv.URL
		}
		fmt.Fprint(w, text)
	case r.URL.Path == "/v1/leader":
		f.mu.Lock()
		text := f.leaderText
		f.mu.Unlock()
		fmt.Fprint(w, text)
	case strings.HasPrefix(r.URL.Path, "/v1/keys/"):
		f.handleKeys(w, r)
	case strings.HasPrefix(r.URL.Path, "/v1/watch/"):
		f.handleWatch(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeEtcd) handleKeys(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v1/keys")
	listing := strings.HasSuffix(key, "/") && key != "/"
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		key = "/"
	}

	switch r.Method {
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// v1 要求 value 非空，此校验先于 set/test-and-set 分支
		if r.PostForm.Get("value") == "" {
			writeEtcdError(w, 200, "Value is Required in POST form", "Set")
			return
		}
		if r.PostForm.Has("prevValue") {
			f.testAndSet(w, key, r.PostForm)
			return
		}
		f.set(w, key, r.PostForm)
	case http.MethodGet:
		f.get(w, key, listing)
	case http.MethodDelete:
		f.del(w, key)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *fakeEtcd) set(w http.ResponseWriter, key string, form url.Values) {
	f.mu.Lock()
	if f.hasChildrenLocked(key) {
		f.mu.Unlock()
		writeEtcdError(w, ErrCodeNotFile, "Not A File", key)
		return
	}
	value := form.Get("value")
	prev, existed := f.liveNodeLocked(key)

	f.index++
	idx := f.index
	node := &fakeNode{value: value, index: idx}
	body := map[string]any{"action": "SET", "key": key, "value": value, "index": idx}
	if existed {
		body["prevValue"] = prev.value
	} else {
		body["newKey"] = true
	}
	if ttl := form.Get("ttl"); ttl != "" {
		sec, err := strconv.Atoi(ttl)
		if err != nil || sec <= 0 {
			f.mu.Unlock()
			writeEtcdError(w, 202, "The given TTL in POST form is not a number", "Set")
			return
		}
		exp := f.nowLocked().Add(time.Duration(sec) * time.Second)
		node.expiresAt = exp
		body["expiration"] = exp.Format(time.RFC3339Nano)
		body["ttl"] = sec
	}
	f.nodes[key] = node
	f.recordLocked(fakeChange{action: "SET", key: key, value: value, newKey: !existed, index: idx})
	f.mu.Unlock()
	writeJSON(w, body)
}

func (f *fakeEtcd) testAndSet(w http.ResponseWriter, key string, form url.Values) {
	f.mu.Lock()
	if f.hasChildrenLocked(key) {
		f.mu.Unlock()
		writeEtcdError(w, ErrCodeNotFile, "Not A File", key)
		return
	}
	node, ok := f.liveNodeLocked(key)
	if !ok {
		f.mu.Unlock()
		writeEtcdError(w, ErrCodeKeyNotFound, "Key Not Found", key)
		return
	}
	prevValue := form.Get("prevValue")
	if node.value != prevValue {
		cause := fmt.Sprintf("[%s != %s]", prevValue, node.value)
		f.mu.Unlock()
		writeEtcdError(w, ErrCodeTestFailed, "Test Failed", cause)
		return
	}

	f.index++
	idx := f.index
	value := form.Get("value")
	next := &fakeNode{value: value, index: idx}
	body := map[string]any{"action": "SET", "key": key, "prevValue": node.value, "value": value, "index": idx}
	if ttl := form.Get("ttl"); ttl != "" {
		if sec, err := strconv.Atoi(ttl); err == nil && sec > 0 {
			exp := f.nowLocked().Add(time.Duration(sec) * time.Second)
			next.expiresAt = exp
			body["expiration"] = exp.Format(time.RFC3339Nano)
			body["ttl"] = sec
		}
	}
	f.nodes[key] = next
	f.recordLocked(fakeChange{action: "SET", key: key, value: value, prevValue: node.value, index: idx})
	f.mu.Unlock()
	writeJSON(w, body)
}

func (f *fakeEtcd) get(w http.ResponseWriter, key string, listing bool) {
	f.mu.Lock()
	node, ok := f.liveNodeLocked(key)
	if ok && !listing {
		body := leafBody(key, node)
		f.mu.Unlock()
		writeJSON(w, body)
		return
	}
	entries := f.childrenLocked(key)
	if len(entries) > 0 {
		f.mu.Unlock()
		writeJSON(w, entries)
		return
	}
	if ok {
		// 对叶子节点发起的列举：v1 返回单个对象而非数组。
		body := leafBody(key, node)
		f.mu.Unlock()
		writeJSON(w, body)
		return
	}
	f.mu.Unlock()
	writeEtcdError(w, ErrCodeKeyNotFound, "Key Not Found", key)
}

func (f *fakeEtcd) del(w http.ResponseWriter, key string) {
	f.mu.Lock()
	node, ok := f.liveNodeLocked(key)
	if !ok {
		if f.hasChildrenLocked(key) {
			f.mu.Unlock()
			writeEtcdError(w, ErrCodeNotFile, "Not A File", key)
			return
		}
		f.mu.Unlock()
		writeEtcdError(w, ErrCodeKeyNotFound, "Key Not Found", key)
		return
	}
	delete(f.nodes, key)
	f.index++
	idx := f.index
	body := map[string]any{"action": "DELETE", "key": key, "prevValue": node.value, "index": idx}
	f.recordLocked(fakeChange{action: "DELETE", key: key, prevValue: node.value, index: idx})
	f.mu.Unlock()
	writeJSON(w, body)
}

func (f *fakeEtcd) handleWatch(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/watch")
	if path == "" {
		path = "/"
	}

	var sinceIndex uint64
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		idx, err := strconv.ParseUint(r.PostForm.Get("index"), 10, 64)
		if err != nil {
			writeEtcdError(w, 203, "The given index in POST form is not a number", "Watch")
			return
		}
		sinceIndex = idx
	}

	f.mu.Lock()
	if sinceIndex > 0 {
		for _, c := range f.history {
			if c.index >= sinceIndex && watchMatches(path, c.key) {
				f.mu.Unlock()
				writeJSON(w, watchBody(c))
				return
			}
		}
	}
	wt := &fakeWaiter{path: path, ch: make(chan fakeChange, 1)}
	f.waiters = append(f.waiters, wt)
	f.mu.Unlock()

	select {
	case c := <-wt.ch:
		writeJSON(w, watchBody(c))
	case <-r.Context().Done():
	}
}

// ==================== 内部辅助 ====================

func (f *fakeEtcd) nowLocked() time.Time {
	return time.Now().Add(f.offset)
}

// liveNodeLocked 返回未过期的节点；过期节点被当场清除。
func (f *fakeEtcd) liveNodeLocked(key string) (*fakeNode, bool) {
	node, ok := f.nodes[key]
	if !ok {
		return nil, false
	}
	if !node.expiresAt.IsZero() && !f.nowLocked().Before(node.expiresAt) {
		delete(f.nodes, key)
		return nil, false
	}
	return node, true
}

func (f *fakeEtcd) hasChildrenLocked(key string) bool {
	prefix := key + "/"
	if key == "/" {
		prefix = "/"
	}
	for stored := range f.nodes {
		if strings.HasPrefix(stored, prefix) && stored != key {
			if _, ok := f.liveNodeLocked(stored); ok {
				return true
			}
		}
	}
	return false
}

// childrenLocked 返回 key 的直接子项，目录去重后按键名排序。
func (f *fakeEtcd) childrenLocked(key string) []map[string]any {
	prefix := key + "/"
	if key == "/" {
		prefix = "/"
	}
	dirs := make(map[string]bool)
	leaves := make(map[string]*fakeNode)
	for stored := range f.nodes {
		if !strings.HasPrefix(stored, prefix) || stored == key {
			continue
		}
		node, ok := f.liveNodeLocked(stored)
		if !ok {
			continue
		}
		rest := strings.TrimPrefix(stored, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			dirs[prefix+rest[:i]] = true
		} else {
			leaves[stored] = node
		}
	}

	names := make([]string, 0, len(dirs)+len(leaves))
	for name := range dirs {
		names = append(names, name)
	}
	for name := range leaves {
		names = append(names, name)
	}
	slices.Sort(names)

	entries := make([]map[string]any, 0, len(names))
	for _, name := range names {
		if dirs[name] {
			entries = append(entries, map[string]any{"action": "GET", "key": name, "dir": true, "index": f.index})
			continue
		}
		entries = append(entries, leafBody(name, leaves[name]))
	}
	return entries
}

// recordLocked 追加变更历史并唤醒匹配的长轮询等待者。
func (f *fakeEtcd) recordLocked(c fakeChange) {
	f.history = append(f.history, c)
	keep := f.waiters[:0]
	for _, wt := range f.waiters {
		if watchMatches(wt.path, c.key) {
			wt.ch <- c // 缓冲为 1，单次长轮询只消费一个事件
		} else {
			keep = append(keep, wt)
		}
	}
	f.waiters = keep
}

func watchMatches(path, key string) bool {
	if path == "/" {
		return true
	}
	return key == path || strings.HasPrefix(key, path+"/")
}

func leafBody(key string, node *fakeNode) map[string]any {
	return map[string]any{"action": "GET", "key": key, "value": node.value, "index": node.index}
}

// watchBody 构造 watch 响应体，字段与变更发生时的响应一致。
func watchBody(c fakeChange) map[string]any {
	body := map[string]any{"action": c.action, "key": c.key, "index": c.index}
	if c.value != "" {
		body["value"] = c.value
	}
	if c.prevValue != "" {
		body["prevValue"] = c.prevValue
	}
	if c.newKey {
		body["newKey"] = true
	}
	return body
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// writeEtcdError 按 v1 协议写错误体；客户端不检查状态码，这里统一 400。
func writeEtcdError(w http.ResponseWriter, code int, message, cause string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errorCode": code,
		"message":   message,
		"cause":     cause,
	})
}
