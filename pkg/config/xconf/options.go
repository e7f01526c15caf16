package xconf

// Options 定义配置加载选项。
type Options struct {
	// Delim 配置键路径的分隔符，默认 "."，如 "etcd.host"。
	Delim string

	// Tag 结构体标签名，Unmarshal 时用于字段映射，默认 "koanf"。
	Tag string
}

// Option 定义配置选项函数类型。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Delim: ".",
		Tag:   "koanf",
	}
}

// WithDelim 设置配置键路径的分隔符。
func WithDelim(delim string) Option {
	return func(o *Options) {
		o.Delim = delim
	}
}

// WithTag 设置 Unmarshal 使用的结构体标签名。
func WithTag(tag string) Option {
	return func(o *Options) {
		o.Tag = tag
	}
}
