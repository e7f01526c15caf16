package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// koanfLoader 是 Loader 接口的 koanf 实现。
//
// 设计决策：读路径走 atomic.Pointer 快照（无锁），
// Reload 由 reloadMu 串行化后整体替换快照。
// 替换而非原地更新保证读方永远看到一份完整解析的配置。
type koanfLoader struct {
	current   atomic.Pointer[koanf.Koanf]
	reloadMu  sync.Mutex
	path      string
	format    Format
	opts      *Options
	fromBytes bool
}

var _ WatchableLoader = (*koanfLoader)(nil)

// New 从文件路径创建配置加载器。
// 根据文件扩展名自动检测格式（.yaml/.yml 或 .json）。
func New(path string, opts ...Option) (Loader, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	k, err := parse(data, format, options.Delim)
	if err != nil {
		return nil, err
	}

	l := &koanfLoader{
		path:   path,
		format: format,
		opts:   options,
	}
	l.current.Store(k)
	return l, nil
}

// NewFromBytes 从字节数据创建配置加载器。
// 需要显式指定格式，适用于 K8s ConfigMap 等场景。
// 空数据会得到一个空配置实例，Unmarshal 返回目标结构体的零值。
func NewFromBytes(data []byte, format Format, opts ...Option) (Loader, error) {
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	k, err := parse(data, format, options.Delim)
	if err != nil {
		return nil, err
	}

	l := &koanfLoader{
		format:    format,
		opts:      options,
		fromBytes: true,
	}
	l.current.Store(k)
	return l, nil
}

// Client 返回当前配置快照对应的 koanf 实例。
func (l *koanfLoader) Client() *koanf.Koanf {
	return l.current.Load()
}

// Unmarshal 将指定路径的配置反序列化到目标结构体。
func (l *koanfLoader) Unmarshal(path string, target any) error {
	k := l.current.Load()
	if err := k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{
		Tag: l.opts.Tag,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// MustUnmarshal 与 Unmarshal 相同，但失败时 panic。
func (l *koanfLoader) MustUnmarshal(path string, target any) {
	if err := l.Unmarshal(path, target); err != nil {
		panic(err)
	}
}

// Reload 重新读取并解析配置文件，成功后原子替换当前快照。
func (l *koanfLoader) Reload() error {
	if l.fromBytes {
		return ErrNotFromFile
	}

	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	k, err := parse(data, l.format, l.opts.Delim)
	if err != nil {
		return err
	}

	l.current.Store(k)
	return nil
}

// Path 返回配置文件路径。
func (l *koanfLoader) Path() string {
	return l.path
}

// Format 返回配置格式。
func (l *koanfLoader) Format() Format {
	return l.format
}

// =============================================================================
// 内部辅助函数
// =============================================================================

// detectFormat 根据文件扩展名检测配置格式。
func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

// isValidFormat 检查格式是否有效。
func isValidFormat(format Format) bool {
	switch format {
	case FormatYAML, FormatJSON:
		return true
	default:
		return false
	}
}

// parse 把字节数据解析为一个新的 koanf 实例。
// 空数据视为空配置，与读取空文件的行为一致。
func parse(data []byte, format Format, delim string) (*koanf.Koanf, error) {
	k := koanf.New(delim)
	if len(data) == 0 {
		return k, nil
	}

	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return nil, ErrUnsupportedFormat
	}

	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return k, nil
}
