// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、工作流、
工具调用与数据库四个维度。

# 概述

Collector 使用 promauto 自动注册指标，所有指标按 namespace 隔离。
Collector 实现了 workflow.Recorder，可直接通过 workflow.WithRecorder
注入执行器。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 工作流指标：运行次数、耗时、步骤数、总 token、尝试结果、降级/缓存兜底次数、预算拒绝次数。
  - 工具指标：调用次数、耗时、token 用量，按 tool 分组。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram。
*/
package metrics
