// Package tlsutil 提供集中式 TLS 配置，供 LLM HTTP 客户端、中继 WebSocket 连接
// 与 Redis 连接共用（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
