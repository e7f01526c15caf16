package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xetcd1/pkg/distributed/xdlock"
	"github.com/omeyang/xetcd1/pkg/storage/xetcd1"
)

// exitError 表示需要非零退出码但已完成输出的场景。
// 命令内部已完成所有输出，main 只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 表示参数使用错误，run() 统一映射为退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// isCLIUsageError 判断是否为 CLI 框架产生的解析错误（未知命令、未知 flag 等）。
func isCLIUsageError(err error) bool {
	if _, ok := err.(cli.ExitCoder); ok {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "flag provided but not defined") ||
		strings.Contains(msg, "No help topic for")
}

// etcdAPI 命令所需的客户端能力，便于测试替换。
type etcdAPI interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) (*xetcd1.SetResult, error)
	Get(ctx context.Context, key string) (*xetcd1.GetResult, error)
	Delete(ctx context.Context, key string) (*xetcd1.DeleteResult, error)
	List(ctx context.Context, prefix string) ([]xetcd1.ListEntry, error)
	GetRecursive(ctx context.Context, prefix string) ([]xetcd1.KeyValue, error)
	Watch(ctx context.Context, key string, opts ...xetcd1.WatchOption) (*xetcd1.WatchResult, error)
	WatchStream(ctx context.Context, key string, cfg xetcd1.StreamConfig, opts ...xetcd1.WatchOption) (<-chan xetcd1.WatchEvent, error)
	TestAndSet(ctx context.Context, key, prevValue, value string, ttl time.Duration) (*xetcd1.TestAndSetResult, error)
	Machines(ctx context.Context) ([]string, error)
	Leader(ctx context.Context) (string, error)
	Health(ctx context.Context) error
}

var _ etcdAPI = (*xetcd1.Client)(nil)

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createGetCommand(),
		createSetCommand(),
		createRmCommand(),
		createLsCommand(),
		createExportCommand(),
		createWatchCommand(),
		createTasCommand(),
		createMachinesCommand(),
		createLeaderCommand(),
		createHealthCommand(),
		createLockCommand(),
	}
}

// requireArgs 校验位置参数个数，不符时返回 usageError。
func requireArgs(cmd *cli.Command, n int, usage string) ([]string, error) {
	args := cmd.Args().Slice()
	if len(args) != n {
		return nil, &usageError{msg: fmt.Sprintf("%s 命令需要 %d 个参数: %s", cmd.Name, n, usage)}
	}
	return args, nil
}

// withClient 构建客户端执行 fn，并负责客户端与日志资源的清理。
func withClient(cmd *cli.Command, fn func(client *xetcd1.Client, p *printer) error) error {
	client, cleanup, err := buildClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(client, newPrinter(os.Stdout, cmd.Bool("json")))
}

// createGetCommand 创建 get 子命令。
func createGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "读取键值",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, 1, "<key>")
			if err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdGet(ctx, p, client, args[0])
			})
		},
	}
}

// createSetCommand 创建 set 子命令。
func createSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "写入键值",
		ArgsUsage: "<key> <value>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "过期时间（如 30s、5m），0 表示永不过期",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, 2, "<key> <value>")
			if err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdSet(ctx, p, client, args[0], args[1], cmd.Duration("ttl"))
			})
		},
	}
}

// createRmCommand 创建 rm 子命令。
func createRmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Aliases:   []string{"del"},
		Usage:     "删除键",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, 1, "<key>")
			if err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdRm(ctx, p, client, args[0])
			})
		},
	}
}

// createLsCommand 创建 ls 子命令。
func createLsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Aliases:   []string{"list"},
		Usage:     "列出目录项",
		ArgsUsage: "<prefix>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, 1, "<prefix>")
			if err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdLs(ctx, p, client, args[0])
			})
		},
	}
}

// createExportCommand 创建 export 子命令。
func createExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "递归导出叶子键值对",
		ArgsUsage: "<prefix>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, 1, "<prefix>")
			if err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdExport(ctx, p, client, args[0])
			})
		},
	}
}

// createWatchCommand 创建 watch 子命令。
func createWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "监视键（或其子树）的变更",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:    "index",
				Aliases: []string{"i"},
				Usage:   "从指定的全局索引开始监视（可回放历史变更）",
			},
			&cli.DurationFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "最长等待时间，超时无变更则退出码 1（默认一直等待）",
			},
			&cli.BoolFlag{
				Name:    "forever",
				Aliases: []string{"f"},
				Usage:   "持续监视，每行输出一个变更",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, 1, "<path>")
			if err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				var opts []xetcd1.WatchOption
				if cmd.IsSet("index") {
					opts = append(opts, xetcd1.WithWatchIndex(cmd.Uint64("index")))
				}
				if d := cmd.Duration("wait"); d > 0 {
					opts = append(opts, xetcd1.WithWatchTimeout(d))
				}
				if cmd.Bool("forever") {
					return cmdWatchForever(ctx, p, client, args[0], opts)
				}
				return cmdWatch(ctx, p, client, args[0], opts)
			})
		},
	}
}

// createTasCommand 创建 tas 子命令。
func createTasCommand() *cli.Command {
	return &cli.Command{
		Name:      "tas",
		Aliases:   []string{"swap"},
		Usage:     "前值匹配时原子交换键值",
		ArgsUsage: "<key> <prev> <value>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "交换成功后设置的过期时间，0 表示永不过期",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, 3, "<key> <prev> <value>")
			if err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdTas(ctx, p, client, args[0], args[1], args[2], cmd.Duration("ttl"))
			})
		},
	}
}

// createMachinesCommand 创建 machines 子命令。
func createMachinesCommand() *cli.Command {
	return &cli.Command{
		Name:  "machines",
		Usage: "列出集群机器地址",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := requireArgs(cmd, 0, "无参数"); err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdMachines(ctx, p, client)
			})
		},
	}
}

// createLeaderCommand 创建 leader 子命令。
func createLeaderCommand() *cli.Command {
	return &cli.Command{
		Name:  "leader",
		Usage: "查询当前 leader 地址",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := requireArgs(cmd, 0, "无参数"); err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdLeader(ctx, p, client)
			})
		},
	}
}

// createHealthCommand 创建 health 子命令。
func createHealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "检查服务端健康状态",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := requireArgs(cmd, 0, "无参数"); err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdHealth(ctx, p, client, client.Endpoint())
			})
		},
	}
}

// createLockCommand 创建 lock 子命令。
func createLockCommand() *cli.Command {
	return &cli.Command{
		Name:      "lock",
		Usage:     "获取分布式锁并持有，Ctrl+C 释放退出",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "锁的租约时长（持有期间自动续约）",
				Value: time.Minute,
			},
			&cli.StringFlag{
				Name:  "identity",
				Usage: "持有者标识，默认 主机名:进程号",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, 1, "<key>")
			if err != nil {
				return err
			}
			return withClient(cmd, func(client *xetcd1.Client, p *printer) error {
				return cmdLock(ctx, p, client, args[0], cmd.Duration("ttl"), cmd.String("identity"))
			})
		},
	}
}

// cmdGet 读取键值，文本模式仅输出值。
func cmdGet(ctx context.Context, p *printer, api etcdAPI, key string) error {
	res, err := api.Get(ctx, key)
	if err != nil {
		return err
	}
	return p.print(kvOutput{Key: key, Value: res.Value, Index: res.Index}, func(w io.Writer) {
		fmt.Fprintln(w, res.Value)
	})
}

// cmdSet 写入键值，文本模式输出写入后的值。
func cmdSet(ctx context.Context, p *printer, api etcdAPI, key, value string, ttl time.Duration) error {
	res, err := api.Set(ctx, key, value, ttl)
	if err != nil {
		return err
	}
	out := setOutput{
		Key:        key,
		Value:      value,
		Index:      res.Index,
		NewKey:     res.NewKey,
		PrevValue:  res.PrevValue,
		Expiration: res.Expiration,
	}
	return p.print(out, func(w io.Writer) {
		fmt.Fprintln(w, value)
	})
}

// cmdRm 删除键，文本模式输出删除前的值。
func cmdRm(ctx context.Context, p *printer, api etcdAPI, key string) error {
	res, err := api.Delete(ctx, key)
	if err != nil {
		return err
	}
	out := deleteOutput{Key: key, Index: res.Index, PrevValue: res.PrevValue}
	return p.print(out, func(w io.Writer) {
		fmt.Fprintln(w, res.PrevValue)
	})
}

// cmdLs 列出目录项，文本模式中目录以 / 结尾，叶子键附带值。
func cmdLs(ctx context.Context, p *printer, api etcdAPI, prefix string) error {
	entries, err := api.List(ctx, prefix)
	if err != nil {
		return err
	}
	out := make([]listOutput, 0, len(entries))
	for _, e := range entries {
		out = append(out, listOutput{Key: e.Key, Value: e.Value, Dir: e.Dir, Index: e.Index})
	}
	return p.print(out, func(w io.Writer) {
		for _, e := range entries {
			if e.Dir {
				fmt.Fprintf(w, "%s/\n", e.Key)
			} else {
				fmt.Fprintf(w, "%s\t%s\n", e.Key, e.Value)
			}
		}
	})
}

// cmdExport 递归导出叶子键值对，文本模式输出 key=value 行。
func cmdExport(ctx context.Context, p *printer, api etcdAPI, prefix string) error {
	kvs, err := api.GetRecursive(ctx, prefix)
	if err != nil {
		return err
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return p.print(out, func(w io.Writer) {
		for _, kv := range kvs {
			fmt.Fprintf(w, "%s=%s\n", kv.Key, kv.Value)
		}
	})
}

// cmdWatch 阻塞等待一次变更并输出。
// 设置了 --wait 且窗口内无变更时输出提示并返回退出码 1，
// 便于脚本区分"捕获到变更"与"超时无变更"。
func cmdWatch(ctx context.Context, p *printer, api etcdAPI, key string, opts []xetcd1.WatchOption) error {
	res, err := api.Watch(ctx, key, opts...)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintln(os.Stderr, "等待超时: 窗口内无变更")
		return &exitError{code: 1}
	}
	return printWatchResult(p, res)
}

// cmdWatchForever 持续监视并逐个输出变更，ctx 取消（Ctrl+C）时正常退出。
func cmdWatchForever(ctx context.Context, p *printer, api etcdAPI, key string, opts []xetcd1.WatchOption) error {
	events, err := api.WatchStream(ctx, key, xetcd1.DefaultStreamConfig(), opts...)
	if err != nil {
		return err
	}
	for ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
		if err := printWatchResult(p, ev.Result); err != nil {
			return err
		}
	}
	return nil
}

// printWatchResult 输出单个变更，文本模式为 "ACTION key value" 一行。
func printWatchResult(p *printer, res *xetcd1.WatchResult) error {
	out := watchOutput{
		Action: res.Action,
		Key:    res.Key,
		Value:  res.Value,
		Index:  res.Index,
		NewKey: res.NewKey,
	}
	return p.print(out, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s %s\n", res.Action, res.Key, res.Value)
	})
}

// cmdTas 原子比较并交换。
// 前值不匹配是预期内的业务结果，输出服务端详情（含当前值）并返回退出码 1。
func cmdTas(ctx context.Context, p *printer, api etcdAPI, key, prev, value string, ttl time.Duration) error {
	res, err := api.TestAndSet(ctx, key, prev, value, ttl)
	if err != nil {
		if xetcd1.IsTestFailed(err) {
			fmt.Fprintf(os.Stderr, "前值不匹配: %v\n", err)
			return &exitError{code: 1}
		}
		return err
	}
	out := tasOutput{
		Key:        key,
		Value:      value,
		PrevValue:  res.PrevValue,
		Index:      res.Index,
		Expiration: res.Expiration,
	}
	return p.print(out, func(w io.Writer) {
		fmt.Fprintln(w, value)
	})
}

// cmdMachines 列出集群机器地址，每行一个。
func cmdMachines(ctx context.Context, p *printer, api etcdAPI) error {
	machines, err := api.Machines(ctx)
	if err != nil {
		return err
	}
	return p.print(machines, func(w io.Writer) {
		for _, m := range machines {
			fmt.Fprintln(w, m)
		}
	})
}

// cmdLeader 查询当前 leader 地址。
func cmdLeader(ctx context.Context, p *printer, api etcdAPI) error {
	leader, err := api.Leader(ctx)
	if err != nil {
		return err
	}
	return p.print(leaderOutput{Leader: leader}, func(w io.Writer) {
		fmt.Fprintln(w, leader)
	})
}

// cmdHealth 检查服务端健康状态。
// 设计决策: 离线时返回非零退出码（通过 exitError），
// 使脚本和探针能正确检测服务状态。
func cmdHealth(ctx context.Context, p *printer, api etcdAPI, endpoint string) error {
	if err := api.Health(ctx); err != nil {
		printErr := p.print(healthOutput{Healthy: false, Endpoint: endpoint, Detail: err.Error()}, func(w io.Writer) {
			fmt.Fprintf(w, "状态: 离线\n服务端: %s\n详情: %v\n", endpoint, err)
		})
		if printErr != nil {
			return printErr
		}
		return &exitError{code: 1}
	}
	return p.print(healthOutput{Healthy: true, Endpoint: endpoint}, func(w io.Writer) {
		fmt.Fprintf(w, "状态: 在线\n服务端: %s\n", endpoint)
	})
}

// cmdLock 获取分布式锁并持有，收到中断信号后释放退出。
// 锁被其他持有者占用时输出提示并返回退出码 1。
func cmdLock(ctx context.Context, p *printer, client *xetcd1.Client, key string, ttl time.Duration, identity string) error {
	lockOpts := []xdlock.Option{xdlock.WithTTL(ttl)}
	if identity != "" {
		lockOpts = append(lockOpts, xdlock.WithIdentity(identity))
	}

	locker, err := xdlock.New(client, lockOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = locker.Close(context.Background()) }()

	handle, err := locker.TryLock(ctx, key)
	if err != nil {
		return err
	}
	if handle == nil {
		fmt.Fprintln(os.Stderr, "锁已被其他持有者占用")
		return &exitError{code: 1}
	}

	// 持有者令牌记录在锁键的值里，回读后一并展示
	var token string
	if res, getErr := client.Get(ctx, handle.Key()); getErr == nil {
		token = res.Value
	}

	out := lockOutput{Key: handle.Key(), Token: token, TTL: ttl.String()}
	if err := p.print(out, func(w io.Writer) {
		fmt.Fprintf(w, "已获取锁: %s\n", handle.Key())
		if token != "" {
			fmt.Fprintf(w, "持有者令牌: %s\n", token)
		}
		fmt.Fprintln(w, "按 Ctrl+C 释放锁并退出")
	}); err != nil {
		return err
	}

	if err := holdLock(ctx, handle, ttl); err != nil {
		return err
	}

	// ctx 已取消，Unlock 内部会切换到独立的清理 context
	if err := handle.Unlock(ctx); err != nil && !errors.Is(err, xdlock.ErrNotLocked) {
		return err
	}
	fmt.Fprintln(os.Stderr, "已释放锁")
	return nil
}

// holdLock 阻塞持有锁并按 TTL 的三分之一周期续约，ctx 取消时返回。
func holdLock(ctx context.Context, handle xdlock.LockHandle, ttl time.Duration) error {
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := handle.Extend(ctx); err != nil {
				return fmt.Errorf("锁续约失败: %w", err)
			}
		}
	}
}

// setupSignalHandler 设置信号处理。
// 设计决策: 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
// 当命令阻塞时，用户可通过再次 Ctrl+C 强制退出。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel() // 第一次信号: 优雅取消

		<-sigCh
		signal.Stop(sigCh) // 回收订阅
		os.Exit(130)       // 第二次信号: 强制退出
	}()
}
