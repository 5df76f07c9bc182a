// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package server 提供 tenex 运维 HTTP 端点的生命周期管理。

Manager 封装 net/http.Server 的非阻塞启动、优雅关闭与异步错误传播；
Health 聚合中继连接、会话存储等就绪检查；NewMux 把 /healthz、/readyz、
/version、/metrics 与会话列表挂到同一个 ServeMux 上。
*/
package server
