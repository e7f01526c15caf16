// Package xdlock 提供基于 etcd v1 test-and-set 的分布式锁。
//
// # 设计理念
//
// xdlock 采用与 xetcd1 相同的设计模式：
//   - 工厂函数：New(client) 创建锁工厂，复用调用方的 xetcd1.Client
//   - Handle 模式：每次成功获取返回独立的 LockHandle，持有 handle 即持有锁
//   - 增值功能：阻塞式 Lock 的退避重试、健康检查、统一错误
//
// # 锁协议
//
// 锁是一个普通的 etcd 键。哨兵值 "unlocked" 表示未上锁（v1 协议拒绝
// 空表单值，哨兵必须非空）；其余值是当前持有者的令牌
// （instance-identity:uuid，每次获取独立生成，总是带 ":" 分隔符，
// 不会与哨兵混淆）。所有状态迁移都通过 TestAndSet 完成：
//
//   - 获取：TestAndSet(key, "unlocked", token, ttl)，仅当键未上锁时成功
//   - 释放：TestAndSet(key, token, "unlocked", 0)，仅当令牌仍属于自己时成功
//   - 续期：TestAndSet(key, token, token, ttl)，刷新 TTL 且校验所有权
//
// TTL 构成持有者的存活上界：持有者崩溃后键随 TTL 过期删除，后续获取
// 会重新初始化锁键。长任务需要周期性调用 Extend 保活。
//
// # 使用模式
//
//	locker, err := xdlock.New(client)
//	if err != nil {
//	    return err
//	}
//	handle, err := locker.TryLock(ctx, "my-resource", xdlock.WithTTL(5*time.Minute))
//	if err != nil {
//	    return err // 锁服务异常
//	}
//	if handle == nil {
//	    return nil // 被其他实例持有，跳过执行
//	}
//	defer handle.Unlock(ctx)
//
//	// 执行任务...
//
// # 注意事项
//
// v1 API 没有"不存在则创建"原语，锁键的首次初始化（以及持有者崩溃、
// 键随 TTL 删除后的重建）通过无条件 Set 写入未上锁哨兵完成。两个实例
// 同时初始化同一个键时存在极小的竞争窗口；键一旦初始化完成，后续的
// 获取、释放、续期全部是原子的 TestAndSet。对初始化竞争敏感的场景，
// 建议在部署期预先创建锁键。
package xdlock
