// Package xetcd1 提供 etcd v1 HTTP API 的客户端封装。
//
// v1 API 是 etcd 早期版本（v0.x）暴露的 REST 接口：
// 键空间挂在 /v1/keys 下，监视走 /v1/watch 长轮询，
// 集群信息通过 /v1/machines 和 /v1/leader 查询。
// xetcd1 面向仍在运行这类旧集群的场景，提供：
//   - KV 操作（Set/Get/Delete/TestAndSet）
//   - 目录列举与递归展开（List/GetRecursive）
//   - 单次 Watch 长轮询与带重连的 WatchStream
//   - 集群信息查询与 endpoint 同步（Machines/Leader/Sync）
//
// 所有操作是同步的：一次调用对应一次 HTTP 往返，失败不自动重试，
// 取消与超时统一通过 context 控制。服务端以 errorCode 表达的业务错误
// （如键不存在）会转换为 *EtcdError，可用 errors.Is 与哨兵错误匹配。
package xetcd1
