package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xetcd1/pkg/config/xconf"
	"github.com/omeyang/xetcd1/pkg/observability/xlog"
	"github.com/omeyang/xetcd1/pkg/storage/xetcd1"
)

// defaultServerPort 服务端默认客户端端口。
const defaultServerPort = 4001

// buildClient 根据全局选项构建客户端。
// 返回的 cleanup 负责关闭客户端与日志资源。
func buildClient(cmd *cli.Command) (*xetcd1.Client, func(), error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger, logCleanup, err := buildLogger(cmd)
	if err != nil {
		return nil, nil, err
	}

	client, err := xetcd1.NewClient(cfg, xetcd1.WithLogger(logger))
	if err != nil {
		_ = logCleanup()
		return nil, nil, err
	}

	cleanup := func() {
		_ = client.Close()
		_ = logCleanup()
	}
	return client, cleanup, nil
}

// resolveConfig 合并各配置来源。
// 优先级: 命令行显式指定 > 配置文件 etcd 段 > 内置默认值。
func resolveConfig(cmd *cli.Command) (*xetcd1.Config, error) {
	cfg := xetcd1.DefaultConfig()

	if path := cmd.String("config"); path != "" {
		loader, err := xconf.New(path)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		if err := loader.Unmarshal("etcd", cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	// IsSet 区分"用户显式传参"与"flag 默认值"，
	// 避免 --server 的默认值覆盖配置文件里的地址。
	if cmd.IsSet("server") {
		host, port, err := splitServerAddr(cmd.String("server"))
		if err != nil {
			return nil, err
		}
		cfg.Host = host
		cfg.Port = port
	}
	if cmd.IsSet("cert") {
		cfg.CertFile = cmd.String("cert")
	}
	if cmd.IsSet("key") {
		cfg.KeyFile = cmd.String("key")
	}
	if cmd.IsSet("ca") {
		cfg.CAFile = cmd.String("ca")
	}
	if cmd.IsSet("insecure") {
		cfg.InsecureSkipVerify = cmd.Bool("insecure")
	}
	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}

	if err := cfg.Validate(); err != nil {
		return nil, &usageError{msg: err.Error()}
	}
	return cfg, nil
}

// splitServerAddr 解析 host:port 形式的服务端地址。
// 仅写主机名时使用默认端口 4001；IPv6 地址需加方括号，如 "[::1]:4001"。
func splitServerAddr(addr string) (string, int, error) {
	if strings.TrimSpace(addr) == "" {
		return "", 0, &usageError{msg: "服务端地址不能为空"}
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && strings.Contains(addrErr.Err, "missing port") {
			return addr, defaultServerPort, nil
		}
		return "", 0, &usageError{msg: fmt.Sprintf("无效的服务端地址 %q: %v", addr, err)}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, &usageError{msg: fmt.Sprintf("无效的端口 %q", portStr)}
	}
	return host, port, nil
}

// buildLogger 根据全局日志选项构建 slog.Logger。
// 默认输出到 stderr，避免污染命令结果；--log-file 切换为按大小轮转的文件。
func buildLogger(cmd *cli.Command) (*slog.Logger, func() error, error) {
	b := xlog.New().
		SetLevelString(cmd.String("log-level")).
		SetFormat(cmd.String("log-format"))
	if file := cmd.String("log-file"); file != "" {
		b.SetRotation(file)
	}

	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, nil, &usageError{msg: fmt.Sprintf("日志配置无效: %v", err)}
	}
	return logger, cleanup, nil
}
