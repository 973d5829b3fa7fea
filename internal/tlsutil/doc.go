// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

// Package tlsutil 提供集中式 TLS 配置，
// 供 HTTPS 服务端、health 子命令的 HTTP 客户端与 Redis 连接共用（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
