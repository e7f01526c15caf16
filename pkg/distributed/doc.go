// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xdlock: 基于 etcd v1 test-and-set 原语的分布式锁
//
// 设计原则：
//   - 工厂函数返回接口，锁的持有关系由句柄表达
//   - 支持锁续期和优雅释放
//   - 内置健康检查
package distributed
