/*
Package testutil 提供 tenex 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext，自动注册 Cleanup
  - 断言工具: AssertMessageAuthors（会话作者顺序）/ AssertContains

# 子包

  - testutil/mocks: MockProvider（LLM Provider）、RecordingPublisher
    （agent.Publisher）、MockExecutor（tools.Executor）、MockStore
    （带错误注入的会话存储），均支持 Builder 模式
  - testutil/fixtures: Agent 目录、入站事件与 LLM 回复样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponse("hello")
	pub := mocks.NewRecordingPublisher()
*/
package testutil
