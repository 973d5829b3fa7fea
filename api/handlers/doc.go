// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 StepFlow HTTP API 的请求处理器实现。

# 核心类型

  - WorkflowHandler - 执行工作流、列出工具、查询上下文预算
  - HealthHandler   - 存活与就绪探针（/health, /healthz, /ready）以及 /version
  - ConfigHandler   - 脱敏后的只读配置
  - Response        - 统一 JSON 响应信封（success + data + error + timestamp + request_id）
  - ResponseWriter  - 包装 http.ResponseWriter 以捕获状态码，供日志与指标中间件使用

工作流中的步骤失败不是 HTTP 错误：请求合法时一律返回 200，
由结果的 success 字段与 narrative 表达成败。只有请求本身非法
（JSON 错误、缺少 tool、负数重试次数）才返回 400。

错误码到 HTTP 状态的映射见 mapErrorCodeToHTTPStatus。
*/
package handlers
