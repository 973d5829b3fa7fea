// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 StepFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、tools、budget、
api 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - ToolSchema        - 工具声明（name + description + 参数 JSON Schema + 预估 token 成本）
  - Error / ErrorCode - 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithTraceID / WithTenantID / WithUserID / WithRunID / WithContextID
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
*/
package types
