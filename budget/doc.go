// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package budget 管理按上下文（context ID）划分的 token 预算。

# 核心接口

  - Guard              - 读取剩余预算、记录工具调用结果并扣减 token
  - Reserver           - 可选；原子预留预估成本，消除并发工作流之间的读后写竞争
  - RejectionObserver  - 可选；观察被预算拒绝的调用

# 实现

  - MemoryGuard - 进程内账户，支持默认额度、告警阈值与预留
  - RedisGuard  - Redis 中的剩余额度（stepflow:budget:<ctx>），SETNX 初始化、DECRBY 扣减
  - NewAuditedGuard - 为任意 Guard 附加审计轨迹

剩余额度允许为负数：实际消耗可能超过预估值。
*/
package budget
