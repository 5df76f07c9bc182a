// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package cache 提供基于 Redis 的事件登记簿。

Manager 用 SET NX 记录已经处理过的事件 ID。中继在重连或进程重启后
会按 since 窗口回放事件，Router 在分派前先 Claim，已登记的事件直接跳过，
避免 Agent 对同一条消息重复回复。登记带 TTL，过期后自动清除。
*/
package cache
