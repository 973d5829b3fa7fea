// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 StepFlow 服务端程序入口。

# 概述

cmd/stepflow 提供 HTTP API 服务、一次性工作流执行、健康检查和版本查询
等子命令。配置来自 YAML 文件与 STEPFLOW_ 前缀环境变量，日志使用 zap，
指标经独立端口以 Prometheus 格式暴露。

# 核心类型

  - Server      - 主服务器，管理 API、Metrics 双端口及优雅关闭
  - Middleware  - HTTP 中间件函数签名 func(http.Handler) http.Handler
  - engine      - 按配置装配的执行器及其 Redis、数据库、审计连接

# 主要能力

  - 子命令：serve、run、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger、MetricsMiddleware、CORS、JWTAuth、RateLimiter
  - 限流键：JWT 携带租户时按租户，否则按客户端 IP
  - 优雅关闭：SIGINT/SIGTERM → 关闭 HTTP → 关闭 Metrics → 排空审计 →
    关闭数据库与 Redis → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
