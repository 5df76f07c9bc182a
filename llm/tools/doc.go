// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package tools 提供 Agent 工具调用的注册、解码与执行。

# 统一调用表示

无论 LLM 以原生 Function Calling 还是文本标记（<tool_use>{...}</tool_use>）
返回工具调用，都会被解码为同一个 ToolInvocation{ID, Name, Arguments}：

  - NativeParser — 读取 llm.Message.ToolCalls
  - MarkerParser — 从文本中提取并剥离 <tool_use> 标记
  - ParserFor    — 按 Provider 能力选择解析器

# 执行

Registry 保存工具函数、Schema 与可选的令牌桶限流（golang.org/x/time/rate）；
Executor 按 Agent 的允许列表限定可见工具，并以 errgroup 并发执行一批调用，
结果顺序与调用顺序一致。
*/
package tools
