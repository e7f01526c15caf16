package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchCallback 文件变更回调函数。
// 每次重载后调用一次，err 表示本次重载是否成功。
type WatchCallback func(l Loader, err error)

// WatchOption 监视器配置选项。
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

func defaultWatchOptions() *watchOptions {
	return &watchOptions{
		debounce: 100 * time.Millisecond,
	}
}

// WithDebounce 设置防抖时间。
// 指定时间内的多次变更只触发一次重载，默认 100ms。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watcher 配置文件监视器。
// 监控配置文件变更、防抖后自动重载，回调只在内部监视 goroutine 中执行。
type Watcher struct {
	loader   *koanfLoader
	fsw      *fsnotify.Watcher
	onChange WatchCallback
	debounce time.Duration
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	running bool
}

// Watch 为从文件创建的 Loader 构建监视器。
//
// 返回的 Watcher 需要调用 Start 或 StartAsync 开始监视，Stop 停止。
// 从字节数据创建的 Loader 返回 ErrNotFromFile。
//
// 监视的是配置文件所在目录：编辑器保存文件时可能先删除再创建，
// 直接监视文件本身会在第一次原子写入后丢失后续事件。
func Watch(l Loader, onChange WatchCallback, opts ...WatchOption) (*Watcher, error) {
	kl, ok := l.(*koanfLoader)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported loader type %T", ErrNotFromFile, l)
	}
	if kl.fromBytes || kl.path == "" {
		return nil, ErrNotFromFile
	}

	options := defaultWatchOptions()
	for _, opt := range opts {
		opt(options)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWatch, err)
	}

	dir := filepath.Dir(kl.path)
	if err := fsw.Add(dir); err != nil {
		return nil, errors.Join(
			fmt.Errorf("%w: add directory %s: %w", ErrWatch, dir, err),
			fsw.Close(),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		loader:   kl,
		fsw:      fsw,
		onChange: onChange,
		debounce: options.debounce,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch 实现 WatchableLoader 接口。
func (l *koanfLoader) Watch(onChange WatchCallback, opts ...WatchOption) (*Watcher, error) {
	return Watch(l, onChange, opts...)
}

// Start 启动监视，阻塞直到 Stop 被调用，通常应在 goroutine 中运行。
// 重复调用无效果。
func (w *Watcher) Start() {
	if !w.markRunning() {
		return
	}
	w.run()
}

// StartAsync 在后台 goroutine 中启动监视，立即返回。
func (w *Watcher) StartAsync() {
	if !w.markRunning() {
		return
	}
	go w.run()
}

// Stop 停止监视并释放底层 fsnotify 资源。
// 幂等，未启动时调用同样生效，停止后不可重新启动。
// 停止后不再触发新的重载，正在执行的回调会运行完毕。
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return nil
	}
	w.cancel()
	w.running = false
	return w.fsw.Close()
}

func (w *Watcher) markRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running || w.ctx.Err() != nil {
		return false
	}
	w.running = true
	return true
}

// run 是监视主循环，防抖定时器与回调都由这一个 goroutine 持有，
// 事件合并不需要额外加锁。
func (w *Watcher) run() {
	target := filepath.Base(w.loader.path)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event, target) {
				continue
			}
			// 重置防抖窗口：窗口内的连续写入合并为一次重载
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.notify(w.loader.Reload())

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.notify(fmt.Errorf("%w: %w", ErrWatch, err))
		}
	}
}

// relevant 判断事件是否表示目标配置文件被更新。
// Write 是直接修改；Create/Rename 覆盖编辑器的原子写入
// （写临时文件后 rename 到目标路径）。
func (w *Watcher) relevant(event fsnotify.Event, target string) bool {
	if filepath.Base(event.Name) != target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) notify(err error) {
	if w.onChange != nil {
		w.onChange(w.loader, err)
	}
}
