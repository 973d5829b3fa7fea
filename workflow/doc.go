// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供顺序工作流执行引擎。

# 概述

Executor 按顺序执行一组 Step。每个 Step 调用一个已注册的工具，调用前
经过预算检查与 PII 令牌化，失败时依次尝试降级工具与缓存兜底，并在重试
上限内反复尝试。所有步骤结束后汇总 token 与延迟，生成 Insight 和叙述文本。

# 核心类型

  - Executor             - 工作流执行器，无运行期共享状态，可并发使用
  - Request / Step       - 调用方输入
  - ToolInvocationResult - 单次调用或单次尝试的结果
  - StepOutcome          - 步骤最终结果与尝试次数
  - Result               - 工作流汇总（总 token、总延迟、Insight、叙述）
  - Recorder             - 指标上报接口

# 单次尝试

  1. 截止时间检查，以工作流开始时间为基准累计计算
  2. 调用主工具（预算 → 解析 → PII → 执行 → 估算 → 上报）
  3. 主工具失败且配置了 Fallback 时调用一次降级工具
  4. 仍失败时查询缓存兜底，命中则以缓存结果视为成功

尝试过程中的 panic 会被恢复为 UNEXPECTED 错误，本次尝试不再走降级与缓存。

# 汇总

  - SynthesizeInsights - 固定顺序：高 token、延迟超标、失败、成本估算
  - GenerateNarrative  - 确定性的单行叙述
*/
package workflow
