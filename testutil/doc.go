// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 StepFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
相似的测试基础设施。根包只依赖第三方库，任何包的内部测试都可导入。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 外部依赖: NewRedis（miniredis + go-redis 客户端）、
    NewSQLite（glebarez 内存库，单连接）
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue
  - 数据工具: WaitFor / WaitForChannel / MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockCapability（工具能力）、MockGuard（预算）、
    MockSanitizer（PII），均支持 Builder 模式、调用记录与错误注入
  - testutil/fixtures: 工作流请求与工具 Schema 样例

# 使用示例

	ctx := testutil.TestContext(t)
	capability := mocks.NewMockCapability().WithResult("hello")
	guard := mocks.NewMockGuard(1000)
*/
package testutil
