// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package privacy 在工具调用前检测并令牌化参数中的个人敏感信息（PII）。

# 核心接口

Sanitizer 定义两个操作：

  - ContainsPII - 递归检查参数是否包含 PII
  - Tokenize    - 返回结构不变的副本，PII 被替换为确定性令牌

# 令牌格式

令牌形如 [PII_EMAIL_1a2b3c4d]，后缀为 sha256(salt|type|value) 的前 8 位十六进制。
同一值在同一 salt 下总是得到同一令牌，因此下游工具仍可做相等比较。
配置 Vault 后可通过 Detokenize 还原原文。
*/
package privacy
