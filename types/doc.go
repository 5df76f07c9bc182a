// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package types 提供 tenex 全局共享的类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、team、router、
persistence 等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Event              — 中继网络上的入站/出站事件（id、pubkey、tags、content）
  - ConversationSignal — Agent 回合结束时发出的协调信号
  - ConversationMessage — 追加式对话记录条目
  - Error / ErrorCode  — 结构化错误体系（TEAM_FORMATION、CONFIGURATION、LLM、CONVERSATION）

# 主要能力

  - 会话键推导：Event.ConversationKey 沿根引用标签定位线程根
  - 提及解析：Event.Mentions 按标签顺序返回被 @ 的公钥
  - 错误工具链：NewError / WithCause / IsCode / GetErrorCode / IsRetryable
*/
package types
