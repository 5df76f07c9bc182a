// Copyright (c) tenex Authors.
// Licensed under the MIT License.

// Package pool 提供按键分片的 goroutine 池。
//
// 同一个键的任务总是落在同一个 worker 上按提交顺序执行，
// 不同键的任务并发执行。tenex 用它把中继事件按会话分派，
// 使读循环不被 LLM 调用阻塞，同时保持单个会话内的事件顺序。
package pool
