// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package tokenizer 估算工具返回载荷消耗的 token 数量。

# 核心接口

Estimator 把任意载荷映射为非负 token 数：

  - ByteEstimator     - ceil(规范化序列化字节数 / 4)，默认实现
  - TiktokenEstimator - 基于 tiktoken-go 的精确计数（cl100k_base / o200k_base）

规范化序列化规则见 Serialize：string、[]byte、json.RawMessage 原样使用，
其余类型走 encoding/json。
*/
package tokenizer
