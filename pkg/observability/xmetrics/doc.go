// Package xmetrics 提供统一的可观测性接口（metrics + tracing）。
//
// # 设计理念
//
// xmetrics 只定义最小接口：Observer/Span/Attr。
// 客户端代码依赖接口，不依赖具体实现；默认提供基于
// OpenTelemetry 的实现，未接入可观测栈时使用 NoopObserver。
//
// # 使用示例
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xetcd1",
//		Operation: "get",
//		Kind:      xmetrics.KindClient,
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// # 指标命名
//
// 统一指标：
//   - xetcd1.operation.total
//   - xetcd1.operation.duration
//
// 统一属性：component / operation / status。
package xmetrics
