// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package tools 提供工具能力的封闭注册中心。

# 概述

Registry 在启动时通过 Register 注册工具，每个工具名对应唯一一个
Registration{Schema, Capability, RateLimit}。执行引擎只依赖 Invoker
接口：Schema 读取声明的成本，Load 解析能力。

# 速率限制

Registration.RateLimit 非空时，Registry 为该工具维护一个
golang.org/x/time/rate 令牌桶；Load 在令牌耗尽时返回 ErrRateLimited。
*/
package tools
