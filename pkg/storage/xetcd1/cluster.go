package xetcd1

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/omeyang/xetcd1/pkg/observability/xlog"
)

// Machines 查询集群的机器列表并刷新本地缓存。
//
// 对应 GET /v1/machines，响应是 ", " 分隔的地址文本。
// 并发调用通过 singleflight 合并为一次请求，各调用方拿到各自的副本。
func (c *Client) Machines(ctx context.Context) ([]string, error) {
	if err := c.checkPreconditions(ctx); err != nil {
		return nil, err
	}

	// 设计决策: singleflight 以首个进入者的 ctx 发起请求，
	// 后续合并进来的调用即使自身 ctx 已结束也会等待共享结果；
	// 机器列表查询短且幂等，共享结果优于放大请求量。
	v, err, _ := c.sf.Do("machines", func() (any, error) {
		return c.fetchMachines(ctx)
	})
	if err != nil {
		return nil, err
	}
	machines, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("xetcd1: machines: unexpected singleflight result %T", v)
	}
	return slices.Clone(machines), nil
}

// fetchMachines 执行实际的机器列表请求并更新缓存。
func (c *Client) fetchMachines(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, opRequest{
		op:     "machines",
		method: http.MethodGet,
		path:   machinesPath,
	})
	if err != nil {
		return nil, err
	}

	machines := parseMachines(string(data))
	if len(machines) == 0 {
		return nil, ErrNoMachines
	}

	c.storeMachines(machines)
	return machines, nil
}

// parseMachines 解析机器列表文本，如
// "http://172.17.0.2:4001, http://172.17.0.3:4001"。
func parseMachines(body string) []string {
	parts := strings.Split(body, ",")
	machines := make([]string, 0, len(parts))
	for _, part := range parts {
		if addr := strings.TrimSpace(part); addr != "" {
			machines = append(machines, addr)
		}
	}
	return machines
}

// Leader 查询当前的 raft leader 地址。
//
// 对应 GET /v1/leader，返回原始文本（raft 端口地址，不能直接
// 当作客户端 endpoint 使用；endpoint 跟随见 Sync）。
func (c *Client) Leader(ctx context.Context) (string, error) {
	data, err := c.do(ctx, opRequest{
		op:     "leader",
		method: http.MethodGet,
		path:   leaderPath,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Health 探测服务端可用性，探测失败返回底层错误。
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.Machines(ctx); err != nil {
		return fmt.Errorf("xetcd1: health check: %w", err)
	}
	return nil
}

// Sync 刷新机器列表缓存；FollowLeader 模式下校准 endpoint。
//
// 当前 endpoint 不在集群返回的机器列表中（通常因为该节点已退出
// 集群或发生了 leader 迁移）时，切换到列表中的第一台机器。
// 列表中包含当前 endpoint 时不做任何改动。
func (c *Client) Sync(ctx context.Context) error {
	machines, err := c.Machines(ctx)
	if err != nil {
		return fmt.Errorf("xetcd1: sync: %w", err)
	}

	if !c.config.FollowLeader {
		return nil
	}

	current := c.Endpoint()
	if slices.Contains(machines, current) {
		return nil
	}

	next := machines[0]
	if err := validateMachineAddr(next); err != nil {
		return fmt.Errorf("xetcd1: sync: %w", err)
	}

	old := c.setEndpoint(next)
	c.logInfo("endpoint repointed",
		xlog.Endpoint(next),
		slog.String("previous", old),
	)
	return nil
}

// validateMachineAddr 校验服务端下发的机器地址可用作 endpoint。
func validateMachineAddr(addr string) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("invalid machine address %q: %w", addr, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid machine address %q", addr)
	}
	return nil
}

// autoSyncLoop 按固定间隔执行 Sync，Close 时退出。
func (c *Client) autoSyncLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.AutoSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCtx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.closeCtx, c.config.Timeout)
			if err := c.Sync(ctx); err != nil && !IsClientClosed(err) {
				c.logWarn("auto sync failed", xlog.Err(err))
			}
			cancel()
		}
	}
}
