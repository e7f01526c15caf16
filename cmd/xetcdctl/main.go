// xetcdctl 是 etcd v1 HTTP API 的命令行客户端。
//
// 用法:
//
//	xetcdctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-s, --server     服务端地址 host:port (默认: 127.0.0.1:4001)
//	-t, --timeout    单次请求超时时间 (默认: 30s)
//	-c, --config     配置文件路径 (JSON/YAML，读取其中的 etcd 段)
//	-j, --json       以 JSON 格式输出结果
//	    --cert       客户端证书 PEM 路径（设置后使用 https）
//	    --key        客户端私钥 PEM 路径
//	    --ca         服务端 CA 证书 PEM 路径
//	    --insecure   跳过服务端证书验证（仅限测试环境）
//	    --log-level  日志级别 (debug/info/warn/error，默认: warn)
//	    --log-format 日志格式 (text/json，默认: text)
//	    --log-file   日志输出文件（按大小轮转），默认输出到 stderr
//
// 命令:
//
//	get <key>                          读取键值
//	set <key> <value> [--ttl]          写入键值
//	rm <key>                           删除键
//	ls <prefix>                        列出目录项
//	export <prefix>                    递归导出叶子键值对
//	watch <path> [--index] [--wait] [--forever]  监视变更
//	tas <key> <prev> <value> [--ttl]   原子比较并交换
//	machines                           列出集群机器
//	leader                             查询当前 leader
//	health                             健康检查
//	lock <key> [--ttl] [--identity]    获取分布式锁并持有至中断
//
// 退出码:
//
//	0: 命令执行成功（health 命令: 服务在线）
//	1: 命令执行失败、前值不匹配（tas）、锁被占用（lock）或服务离线（health）
//	2: 参数错误（缺少参数、无效地址、未知命令等）
//
// 示例:
//
//	xetcdctl set app/config/mode production
//	xetcdctl set app/session/token abc123 --ttl 30s
//	xetcdctl get app/config/mode
//	xetcdctl ls app/config
//	xetcdctl export app --json
//	xetcdctl watch app/config/mode --forever
//	xetcdctl tas app/release v1 v2
//	xetcdctl -s etcd.internal:4001 machines
//	xetcdctl lock jobs/nightly --ttl 5m
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认的单次请求超时时间。
const defaultTimeout = 30 * time.Second

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xetcdctl",
		Usage:   "etcd v1 HTTP API 命令行客户端",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "服务端地址 (host:port)",
				Value:   "127.0.0.1:4001",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "单次请求超时时间",
				Value:   defaultTimeout,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径 (JSON/YAML，读取其中的 etcd 段)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "以 JSON 格式输出结果",
			},
			&cli.StringFlag{
				Name:  "cert",
				Usage: "客户端证书 PEM 路径（设置后使用 https）",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "客户端私钥 PEM 路径",
			},
			&cli.StringFlag{
				Name:  "ca",
				Usage: "服务端 CA 证书 PEM 路径",
			},
			&cli.BoolFlag{
				Name:  "insecure",
				Usage: "跳过服务端证书验证（仅限测试环境）",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "warn",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 (text/json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志输出文件（按大小轮转），默认输出到 stderr",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"XKit Team",
		},
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			// ExitCoder 错误（如未知命令）的消息需在此输出，
			// 替代 HandleExitCoder 的默认 os.Exit 行为。
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
		Description: `xetcdctl 通过 etcd v1 HTTP API（/v1/keys、/v1/watch、/v1/machines、
/v1/leader）操作键值存储，适用于脚本与日常排查。

键值命令:
  get <key>                          读取键值，文本模式仅输出值
  set <key> <value>                  写入键值
    --ttl                            过期时间（如 30s、5m），0 表示永不过期
  rm <key>                           删除键，文本模式输出删除前的值
  ls <prefix>                        列出目录项，目录以 / 结尾
  export <prefix>                    递归导出叶子键值对（文本模式 key=value）
  tas <key> <prev> <value>           前值匹配时原子交换，否则退出码 1

监视命令:
  watch <path>                       阻塞等待一次变更并输出
    --index, -i                      从指定索引开始监视（可回放历史变更）
    --wait, -w                       最长等待时间，超时无变更则退出码 1
    --forever, -f                    持续监视，每行输出一个变更

集群命令:
  machines                           列出集群机器地址
  leader                             查询当前 leader 地址
  health                             健康检查，离线时退出码 1

锁命令:
  lock <key>                         获取分布式锁并持有，Ctrl+C 释放退出
    --ttl                            锁的租约时长（默认 60s，自动续约）
    --identity                       持有者标识（默认 主机名:进程号）`,
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置信号处理
	setupSignalHandler(cancel)

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		// CLI 框架产生的参数错误（如未知 flag、未知命令）也返回退出码 2，
		// 与文档契约"参数错误 → 退出码 2"保持一致。
		if isCLIUsageError(err) {
			// ExitErrHandler 或 flag 解析器已向 stderr 输出错误详情，此处仅设置退出码
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}
