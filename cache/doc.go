// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package cache 提供步骤失败时的缓存结果兜底。

# 核心接口

  - Fallback - 失败时按 (tool, params) 查找可替代的历史结果
  - Recorder - 可选；执行引擎把成功结果交给它保存

# 实现

  - Noop   - 永不命中，默认实现
  - Memory - 进程内缓存，支持 TTL、容量上限、排除工具与统计
  - Redis  - 基于 go-redis 的共享缓存，值以 JSON 存储

键格式为 stepflow:toolcache:<sha256(tool, 规范化参数)>。
*/
package cache
