package xetcd1

import (
	"context"
	"net/http"
)

// List 列举键或目录。
//
// 对应 GET /v1/keys/{prefix}/（尾部斜杠表示列举）。目录返回其直接
// 子项（不递归）；裸叶子键返回只含它自身的单元素切片；
// 前缀不存在返回错误码 100 的 *EtcdError。
func (c *Client) List(ctx context.Context, prefix string) ([]ListEntry, error) {
	prefix, err := validateKey(prefix)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, opRequest{
		op:     "list",
		method: http.MethodGet,
		path:   keysPath(prefix) + "/",
	})
	if err != nil {
		return nil, err
	}

	items, err := parseListResponse(data)
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(items))
	for i := range items {
		entries = append(entries, items[i].toListEntry())
	}
	return entries, nil
}

// GetRecursive 递归展开目录下的全部叶子键值对。
//
// 广度优先遍历：从 prefix 出发逐层 List，子目录入队继续展开，
// 叶子键按发现顺序追加到结果中。键空间是树形结构，无环，
// 遍历深度只受目录嵌套深度限制。
func (c *Client) GetRecursive(ctx context.Context, prefix string) ([]KeyValue, error) {
	prefix, err := validateKey(prefix)
	if err != nil {
		return nil, err
	}

	var result []KeyValue
	queue := []string{prefix}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := c.List(ctx, dir)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			if entry.Dir {
				queue = append(queue, entry.Key)
				continue
			}
			result = append(result, KeyValue{Key: entry.Key, Value: entry.Value})
		}
	}

	return result, nil
}
