// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

// Package api 定义 StepFlow HTTP API 的请求与响应类型。
//
// # 端点
//
//	POST /api/v1/workflows/execute    执行工作流，返回 ExecuteWorkflowResponse
//	GET  /api/v1/tools                列出已注册工具
//	GET  /api/v1/budgets/{context_id} 查询上下文预算
//	GET  /health /healthz /ready      健康与就绪探针
//	GET  /version                     版本信息
//	GET  /metrics                     Prometheus 指标（独立端口）
//
// # 认证
//
// 启用 jwt 配置后，/api/v1 下的端点要求 HS256 签名的 Bearer Token：
//
//	Authorization: Bearer <token>
//
// Token 中的 tenant_id 与 user_id 声明会写入请求上下文。
//
// 所有响应使用 handlers.Response 信封：success、data、error、timestamp、request_id。
package api
