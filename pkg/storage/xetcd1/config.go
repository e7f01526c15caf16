package xetcd1

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Config etcd v1 客户端配置。
// 支持 JSON/YAML 反序列化。
//
// 推荐使用 DefaultConfig() 获取带有推荐默认值的配置，然后按需覆盖：
//
//	cfg := xetcd1.DefaultConfig()
//	cfg.Host = "etcd.internal"
//	client, err := xetcd1.NewClient(cfg)
type Config struct {
	// Host 服务端主机名或 IP，默认 "127.0.0.1"。
	Host string `json:"host" yaml:"host" koanf:"host"`

	// Port 服务端客户端端口，默认 4001。
	Port int `json:"port" yaml:"port" koanf:"port"`

	// CertFile 客户端证书 PEM 文件路径（可选）。
	// KeyFile 为空时视为证书与私钥合并在同一文件中。
	CertFile string `json:"certFile" yaml:"certFile" koanf:"certFile"`

	// KeyFile 客户端私钥 PEM 文件路径（可选）。
	// 只设置 KeyFile 而不设置 CertFile 是配置错误。
	KeyFile string `json:"keyFile" yaml:"keyFile" koanf:"keyFile"`

	// CAFile 服务端证书的 CA PEM 文件路径（可选）。
	// 未设置时使用系统根证书池验证服务端。
	CAFile string `json:"caFile" yaml:"caFile" koanf:"caFile"`

	// InsecureSkipVerify 跳过服务端证书验证。
	// 仅用于开发/测试环境，生产环境请勿使用。
	InsecureSkipVerify bool `json:"insecureSkipVerify" yaml:"insecureSkipVerify" koanf:"insecureSkipVerify"`

	// Timeout 单次请求超时，默认 30 秒。
	// Watch 长轮询不受此超时约束（见 WithWatchTimeout）。
	Timeout time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`

	// FollowLeader 启用 endpoint 跟随：Sync 发现当前 endpoint
	// 不在集群机器列表中时，自动切换到列表中的第一台机器。
	FollowLeader bool `json:"followLeader" yaml:"followLeader" koanf:"followLeader"`

	// SyncOnStart 在 NewClient 中执行一次 Sync。
	// 同步失败不阻止客户端创建，仅记录 Warn 日志。
	SyncOnStart bool `json:"syncOnStart" yaml:"syncOnStart" koanf:"syncOnStart"`

	// AutoSyncInterval 后台自动 Sync 的间隔，0 表示禁用。
	// 启用后由 Close 停止后台循环。
	AutoSyncInterval time.Duration `json:"autoSyncInterval" yaml:"autoSyncInterval" koanf:"autoSyncInterval"`
}

// 默认配置值。
const (
	defaultHost    = "127.0.0.1"
	defaultPort    = 4001
	defaultTimeout = 30 * time.Second
)

// DefaultConfig 返回带有推荐默认值的配置。
//
// 默认值：
//   - Host: "127.0.0.1"
//   - Port: 4001
//   - Timeout: 30 秒
func DefaultConfig() *Config {
	return &Config{
		Host:    defaultHost,
		Port:    defaultPort,
		Timeout: defaultTimeout,
	}
}

// Validate 验证配置有效性。
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidConfig, c.Timeout)
	}
	if c.AutoSyncInterval < 0 {
		return fmt.Errorf("%w: negative auto sync interval %s", ErrInvalidConfig, c.AutoSyncInterval)
	}
	if c.KeyFile != "" && c.CertFile == "" {
		return fmt.Errorf("%w: key file set without cert file", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults 应用默认值，返回新的配置（不修改原配置）。
func (c *Config) applyDefaults() *Config {
	cfg := *c
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &cfg
}

// scheme 返回 URL scheme：配置了证书材料（客户端证书或 CA）时为 https。
func (c *Config) scheme() string {
	if c.CertFile != "" || c.CAFile != "" {
		return "https"
	}
	return "http"
}

// baseURL 返回初始 endpoint，如 "http://127.0.0.1:4001"。
func (c *Config) baseURL() string {
	return c.scheme() + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// tlsConfig 根据证书配置构建 *tls.Config。
// 未配置任何证书材料且不跳过验证时返回 nil（使用传输层默认值）。
func (c *Config) tlsConfig() (*tls.Config, error) {
	if c.CertFile == "" && c.CAFile == "" && !c.InsecureSkipVerify {
		return nil, nil
	}

	//nolint:gosec // G402: InsecureSkipVerify 由调用方显式配置，文档已注明仅限开发测试
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	if c.CertFile != "" {
		keyFile := c.KeyFile
		if keyFile == "" {
			// 合并文件：证书与私钥在同一 PEM 中
			keyFile = c.CertFile
		}
		cert, err := tls.LoadX509KeyPair(c.CertFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("xetcd1: load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("xetcd1: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("xetcd1: ca file %s contains no valid certificate", c.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}
