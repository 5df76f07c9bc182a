/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、事件路由、LLM、Agent 与阶段切换五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册到默认 Registry。所有指标按 namespace 隔离。

Collector 的所有 Record 方法对 nil 接收者安全，未启用指标时
调用方可以直接传入 nil。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 路由指标：事件处理总数与耗时、缓存会话数、团队解析来源。
  - LLM 指标：请求总数、耗时、Token 用量（prompt/completion）。
  - Agent 指标：响应总数与耗时、会话信号计数、工具调用计数。
  - 阶段指标：阶段推进与会话完成计数。
*/
package metrics
