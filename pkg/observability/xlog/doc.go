// Package xlog 提供基于 log/slog 的日志构建器。
//
// # 设计理念
//
// 库代码只接受 *slog.Logger 注入，不关心日志如何构建；
// xlog 面向可执行程序（如 xetcdctl），把级别、格式、输出目标、
// 文件轮转的组装收拢到一个链式 Builder 里。
//
// # 使用示例
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xetcdctl.log").
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
//	logger.Info("client ready", xlog.Component("xetcd1"))
package xlog
