// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package llm 定义 tenex 与大语言模型交互的统一契约。

# 核心接口

  - Provider — 同步 Completion、流式 Stream、健康检查与原生工具调用能力声明
  - Error    — 统一错误码（LLM_UPSTREAM_ERROR、LLM_RATE_LIMITED 等），携带可重试标记

# 弹性包装

ResilientProvider 以装饰器方式为任意 Provider 增加指数退避重试，
只对 Retryable 的 *Error 重试；重试耗尽后返回包装了最后一次错误的 error，
可继续用 errors.As 取回 *Error。

具体厂商实现位于 llm/providers 子包，按配置构建 Provider 的工厂位于 llm/factory。
*/
package llm
