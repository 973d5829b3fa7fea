// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
包 redisconn 管理 StepFlow 共享的 Redis 连接。

budget.RedisGuard 与 cache.Redis 都只依赖 redis.Cmdable；本包负责
按 config.RedisConfig 创建客户端（可选 TLS）、启动时探活、后台
定时健康检查，并从 INFO 输出与连接池计数汇总 Stats 供 /ready 使用。
*/
package redisconn
