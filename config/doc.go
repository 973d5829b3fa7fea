// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

// Package config 提供 StepFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → STEPFLOW_* 环境变量 的顺序加载，
// 并提供校验与脱敏视图。
package config
