// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xetcd1: etcd v1 HTTP API 客户端
//
// 设计原则：
//   - 提供贴近协议语义的操作接口
//   - 内置可观测性（日志、指标）
//   - 支持集群机器发现和监视重连
package storage
