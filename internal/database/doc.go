// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
包 database 打开审计存储使用的关系型数据库并管理其连接池。

Open 按 config.DatabaseConfig.Driver 选择 GORM 方言：sqlite（纯 Go
实现，无需 cgo）、postgres 与 mysql；Driver 为空时返回 ErrDisabled，
服务端据此退回内存审计后端。

PoolManager 设置连接池参数，后台定时探活并把打开/空闲连接数交给
StatsRecorder（通常是 metrics.Collector）。Instrument 在 GORM 回调链
上记录每类语句的耗时。
*/
package database
