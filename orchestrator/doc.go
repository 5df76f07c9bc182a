// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package orchestrator 通过一次 LLM 调用为新会话组建团队。

Orchestrator 把可用 Agent 目录、请求内容与项目元数据组织成提示词，
要求模型返回单个 JSON 对象（team、conversationPlan、reasoning）。
解析容忍代码块与前后说明文字，格式错误时先做本地修复，
仍失败则带格式提示重试一次，最终失败统一返回 *TeamFormationError。
*/
package orchestrator
