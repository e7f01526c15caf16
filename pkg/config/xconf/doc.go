// Package xconf 基于 koanf 实现配置文件的加载、解析与热重载。
//
// # 设计理念
//
// xconf 定位为最小化配置加载器：读文件/字节数据、反序列化、热重载。
// 它不做配置治理（必选字段校验、默认值注入、环境变量覆盖），
// 这些由调用方按需实现。xetcdctl 用它加载客户端配置
// （服务地址、TLS 证书、超时、日志），库本身保持通用，
// 任何 YAML/JSON 配置文件都可以加载。
//
// 工厂函数 New / NewFromBytes 返回 Loader 接口；
// 基础读取操作直接使用 Client() 暴露的 koanf 实例，
// Loader 只补充增值能力：并发安全的 Reload、带错误包装的 Unmarshal。
//
// # 支持的格式
//
//   - YAML（默认，推荐）：.yaml, .yml
//   - JSON：.json
//
// # 并发安全
//
// 读路径无锁：Client 与 Unmarshal 通过 atomic.Pointer 读取当前快照。
// Reload 由互斥锁串行化，解析成功后原子替换快照；
// 解析失败时当前快照保持不变，不会出现半新半旧的配置。
//
// Client() 返回的是调用时刻的快照指针，Reload 之后它指向旧配置。
// 需要最新值时重新调用 Client()，不要长期缓存返回的指针。
//
// # 配置监视
//
// Watch 基于 fsnotify 监视配置文件变更并自动 Reload。
// 监视的是文件所在目录而非文件本身，以兼容 vim/emacs 等编辑器的
// 原子写入（写临时文件后 rename）。变更事件经过防抖合并，
// 默认 100ms 内的多次写入只触发一次重载。
// 从字节数据创建的 Loader 不支持监视。
package xconf
