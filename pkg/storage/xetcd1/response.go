package xetcd1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// 结果类型
// =============================================================================

// SetResult Set 操作的结果。
type SetResult struct {
	// Index 本次修改的全局索引。
	Index uint64

	// NewKey 本次写入是否创建了新键。
	NewKey bool

	// PrevValue 覆盖写入前的旧值，新建键时为空字符串。
	PrevValue string

	// Expiration 过期时间，未设置 TTL 时为 nil。
	Expiration *time.Time
}

// GetResult Get 操作的结果。
type GetResult struct {
	// Index 键最后一次修改的全局索引。
	Index uint64

	// Value 键的当前值。
	Value string
}

// DeleteResult Delete 操作的结果。
type DeleteResult struct {
	// Index 本次删除的全局索引。
	Index uint64

	// PrevValue 删除前的值。
	PrevValue string
}

// WatchResult Watch 操作捕获的单个变更。
type WatchResult struct {
	// Action 变更类型，如 "SET"、"DELETE"。
	Action string

	// Key 发生变更的键，不含前导斜杠。
	Key string

	// Value 变更后的值，DELETE 等无值变更时为空字符串。
	Value string

	// Index 变更的全局索引，可作为下一次 Watch 的起点（Index+1）。
	Index uint64

	// NewKey 变更是否创建了新键。
	NewKey bool
}

// TestAndSetResult TestAndSet 操作成功时的结果。
type TestAndSetResult struct {
	// Index 本次修改的全局索引。
	Index uint64

	// Key 被修改的键，保留服务端返回的原始形式（含前导斜杠）。
	Key string

	// PrevValue 交换前的旧值。
	PrevValue string

	// Expiration 过期时间，未设置 TTL 时为 nil。
	Expiration *time.Time
}

// ListEntry List 操作返回的单个目录项。
type ListEntry struct {
	// Key 目录项的键，不含前导斜杠。
	Key string

	// Index 目录项最后一次修改的全局索引。
	Index uint64

	// Value 叶子键的值，目录项为空字符串。
	Value string

	// Dir 目录项是否为子目录。
	Dir bool
}

// KeyValue GetRecursive 展开出的叶子键值对。
type KeyValue struct {
	// Key 叶子键，不含前导斜杠。
	Key string

	// Value 键的值。
	Value string
}

// =============================================================================
// 响应解析
// =============================================================================

// response 镜像 v1 API 的响应 JSON。
// 正常响应与错误响应共用此结构：errorCode 非零表示服务端业务错误。
// 缺失字段反序列化为零值，结果构造时零值即表示"无此值"。
type response struct {
	Action     string `json:"action"`
	Key        string `json:"key"`
	Value      string `json:"value"`
	PrevValue  string `json:"prevValue"`
	NewKey     bool   `json:"newKey"`
	Expiration string `json:"expiration"`
	Dir        bool   `json:"dir"`
	Index      uint64 `json:"index"`
	ErrorCode  int    `json:"errorCode"`
	Message    string `json:"message"`
	Cause      string `json:"cause"`
}

// parseResponse 解析单对象响应。
// 携带 errorCode 的响应转换为 *EtcdError。
func parseResponse(data []byte) (*response, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("xetcd1: decode response: %w", err)
	}
	if err := resp.serverError(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// parseListResponse 解析目录列举响应。
// 目录返回 JSON 数组；裸叶子键返回单个对象，归一化为单元素切片；
// 携带 errorCode 的对象转换为 *EtcdError。
func parseListResponse(data []byte) ([]response, error) {
	if isJSONArray(data) {
		var items []response
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("xetcd1: decode list response: %w", err)
		}
		return items, nil
	}

	resp, err := parseResponse(data)
	if err != nil {
		return nil, err
	}
	return []response{*resp}, nil
}

// isJSONArray 判断 JSON 文档的顶层是否为数组。
func isJSONArray(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// serverError 将携带 errorCode 的响应转换为 *EtcdError。
func (r *response) serverError() error {
	if r.ErrorCode == 0 {
		return nil
	}
	return &EtcdError{
		Code:    r.ErrorCode,
		Message: r.Message,
		Cause:   r.Cause,
	}
}

// expirationTime 解析 RFC3339Nano 格式的过期时间。
// 字段缺失或格式不可解析时返回 nil，保持"无过期时间"语义。
func (r *response) expirationTime() *time.Time {
	if r.Expiration == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, r.Expiration)
	if err != nil {
		return nil
	}
	return &t
}

// stripLeadingSlash 去掉服务端键名的前导斜杠。
func stripLeadingSlash(key string) string {
	return strings.TrimPrefix(key, "/")
}

func (r *response) toSetResult() *SetResult {
	return &SetResult{
		Index:      r.Index,
		NewKey:     r.NewKey,
		PrevValue:  r.PrevValue,
		Expiration: r.expirationTime(),
	}
}

func (r *response) toGetResult() *GetResult {
	return &GetResult{
		Index: r.Index,
		Value: r.Value,
	}
}

func (r *response) toDeleteResult() *DeleteResult {
	return &DeleteResult{
		Index:     r.Index,
		PrevValue: r.PrevValue,
	}
}

func (r *response) toWatchResult() *WatchResult {
	return &WatchResult{
		Action: r.Action,
		Key:    stripLeadingSlash(r.Key),
		Value:  r.Value,
		Index:  r.Index,
		NewKey: r.NewKey,
	}
}

func (r *response) toTestAndSetResult() *TestAndSetResult {
	return &TestAndSetResult{
		Index:      r.Index,
		Key:        r.Key,
		PrevValue:  r.PrevValue,
		Expiration: r.expirationTime(),
	}
}

func (r *response) toListEntry() ListEntry {
	return ListEntry{
		Key:   stripLeadingSlash(r.Key),
		Index: r.Index,
		Value: r.Value,
		Dir:   r.Dir,
	}
}
