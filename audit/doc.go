// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package audit 记录每一次工具调用结果与预算事件的审计轨迹。

# 核心组件

  - Logger        - 同步 Log / 异步 LogAsync（worker 队列），扇出到多个 Backend
  - MemoryBackend - 进程内环形存储，支持过滤查询
  - GormStore     - 基于 gorm 的持久化存储（sqlite / postgres / mysql）

Query 始终读取第一个 Backend。
*/
package audit
