// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package main 提供 tenex 守护进程入口。

# 子命令

  - serve：连接中继，订阅文本事件并把每个会话交给组建好的 Agent 团队
  - identity：打印每个 Agent 的名称与公钥，便于在客户端中提及
  - migrate：对 SQL 会话存储执行数据库迁移
  - health：请求运维端口的 /readyz
  - version：打印构建信息

# serve 的组装顺序

配置加载与校验 → zap 日志 → OpenTelemetry → 会话存储 → LLM Provider →
TeamOrchestrator → AgentFactory → 中继客户端与发布器 → EventRouter →
按会话键分片的 worker 池 → 运维 HTTP 服务（/healthz、/readyz、/metrics、
/version、/sessions）。收到 SIGINT/SIGTERM 后按相反顺序关闭。

Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
