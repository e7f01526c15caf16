package xconf

import "github.com/knadh/koanf/v2"

// Format 定义配置文件格式。
type Format string

// 支持的配置格式。
const (
	// FormatYAML YAML 格式（推荐用于 K8s ConfigMap）。
	FormatYAML Format = "yaml"

	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// Loader 定义配置加载器接口。
// 只提供增值功能，基础读取操作请直接使用 Client() 返回的 koanf 实例。
type Loader interface {
	// Client 返回当前配置快照对应的 koanf 实例。
	// 返回的指针在 Reload 后仍然有效，但指向旧配置。
	Client() *koanf.Koanf

	// Unmarshal 将指定路径的配置反序列化到目标结构体。
	// path 为空字符串时反序列化整个配置。
	Unmarshal(path string, target any) error

	// MustUnmarshal 与 Unmarshal 相同，但失败时 panic。
	// 适用于程序启动时的必要配置加载。
	MustUnmarshal(path string, target any)

	// Reload 重新读取并解析配置文件，成功后原子替换当前快照。
	// 并发安全。从字节数据创建的 Loader 返回 ErrNotFromFile。
	Reload() error

	// Path 返回配置文件路径，从字节数据创建的 Loader 返回空字符串。
	Path() string

	// Format 返回配置格式。
	Format() Format
}

// WatchableLoader 在 Loader 之上补充文件监视能力。
// 只有从文件创建的 Loader 实现此接口的监视语义。
type WatchableLoader interface {
	Loader

	// Watch 监视配置文件变更，变更后自动 Reload 并调用 onChange。
	Watch(onChange WatchCallback, opts ...WatchOption) (*Watcher, error)
}
