// Copyright (c) tenex Authors.
// Licensed under the MIT License.

// Package relay 实现 nostr 风格中继的 WebSocket 客户端：
// REQ/CLOSE 订阅、EVENT 发布与 OK 确认、断线重连后自动恢复订阅。
package relay
