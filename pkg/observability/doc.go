// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展
//   - xmetrics: 客户端操作观测接口与 OpenTelemetry 实现
//   - xrotate: 日志文件轮转
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 观测点以接口注入，零值实现零开销
//   - 支持动态级别控制
package observability
