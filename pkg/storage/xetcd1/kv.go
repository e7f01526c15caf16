package xetcd1

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Set 写入键值。
//
// 对应 POST /v1/keys/{key}。ttl > 0 时键在到期后由服务端自动删除，
// ttl <= 0 表示永不过期。
//
// 服务端业务错误（如对目录写入，错误码 102）返回 *EtcdError。
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) (*SetResult, error) {
	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("value", value)
	if ttl > 0 {
		form.Set("ttl", strconv.FormatInt(ttlSeconds(ttl), 10))
	}

	resp, err := c.doJSON(ctx, opRequest{
		op:     "set",
		method: http.MethodPost,
		path:   keysPath(key),
		form:   form,
	})
	if err != nil {
		return nil, err
	}
	return resp.toSetResult(), nil
}

// Get 获取键值。
//
// 对应 GET /v1/keys/{key}。键不存在返回错误码 100 的 *EtcdError，
// 可用 IsKeyNotFound 判断。目标是目录时请改用 List。
func (c *Client) Get(ctx context.Context, key string) (*GetResult, error) {
	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, opRequest{
		op:     "get",
		method: http.MethodGet,
		path:   keysPath(key),
	})
	if err != nil {
		return nil, err
	}

	// 目录的 GET 返回数组（目录列表），不是单键结果
	if isJSONArray(data) {
		return nil, fmt.Errorf("xetcd1: get %q: key is a directory, use List", key)
	}

	resp, err := parseResponse(data)
	if err != nil {
		return nil, err
	}
	return resp.toGetResult(), nil
}

// Delete 删除键。
//
// 对应 DELETE /v1/keys/{key}。键不存在返回错误码 100 的 *EtcdError。
func (c *Client) Delete(ctx context.Context, key string) (*DeleteResult, error) {
	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}

	resp, err := c.doJSON(ctx, opRequest{
		op:     "delete",
		method: http.MethodDelete,
		path:   keysPath(key),
	})
	if err != nil {
		return nil, err
	}
	return resp.toDeleteResult(), nil
}

// TestAndSet 原子比较并交换：仅当键的当前值等于 prevValue 时写入 value。
//
// 对应 POST /v1/keys/{key}，表单携带 prevValue。条件不满足时返回
// 错误码 101 的 *EtcdError，其 Cause 字段携带服务端给出的当前状态说明；
// 可用 IsTestFailed 判断。ttl 语义与 Set 相同。
func (c *Client) TestAndSet(ctx context.Context, key, prevValue, value string, ttl time.Duration) (*TestAndSetResult, error) {
	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("prevValue", prevValue)
	form.Set("value", value)
	if ttl > 0 {
		form.Set("ttl", strconv.FormatInt(ttlSeconds(ttl), 10))
	}

	resp, err := c.doJSON(ctx, opRequest{
		op:     "test_and_set",
		method: http.MethodPost,
		path:   keysPath(key),
		form:   form,
	})
	if err != nil {
		return nil, err
	}
	return resp.toTestAndSetResult(), nil
}

// ttlSeconds 将 TTL 转换为协议要求的整秒数。
// 设计决策: 向上取整（ceil），确保键的存活时间不短于调用方要求，
// 例如 1.1s 转换为 2s 而非 1s。
func ttlSeconds(ttl time.Duration) int64 {
	seconds := int64(math.Ceil(ttl.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
