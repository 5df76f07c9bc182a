// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package agent 实现单个 LLM 驱动的对话 Agent。

# 概述

Agent 把一条入站事件转换为一条发布到中继网络的回复：组装系统提示词与
最近的会话历史，调用 llm.Provider，解析回复末尾的会话信号，将消息追加到
会话存储，最后通过 Publisher 发布。

# 核心类型

  - Agent：持有签名身份、活跃发言者标记与团队规模提示。
  - Identity：由配置中的密钥确定性派生的 secp256k1 身份，
    事件 ID 为规范序列化的 sha256，签名为 BIP-340 schnorr。
  - Publisher：网络发布面，负责回复与输入状态指示。
  - Response：一次回复的内容、信号、工具调用与元数据。

# 不变量

  - 非活跃发言者的 HandleEvent 是空操作。
  - Agent 从不回复自己发布的事件。
  - 输入状态指示失败只记录日志，不影响主流程。

# 信号

支持原生函数调用的 Provider 通过 conversation_signal 工具返回信号；
其余情况下解析回复末尾的文本块：

	SIGNAL: ready_for_transition
	REASON: implementation finished
*/
package agent
