// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package router 把入站事件分派到会话。

Router 按会话键查找或创建 Session：已持久化的团队直接重建，
提及已知 Agent 时走单 Agent 快速路径，否则交给 orchestrator 组建团队。
同一会话键的并发创建只会执行一次。AgentFactory 负责从配置目录构建 Agent，
包括签名身份、按 Agent 覆盖的 LLM Provider 以及限定范围的工具执行器。
*/
package router
