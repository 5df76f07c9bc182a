// Copyright (c) tenex Authors.
// Licensed under the MIT License.

// Package telemetry 初始化 OpenTelemetry SDK，
// 为 router、orchestrator 与 agent 的 span 提供全局 TracerProvider 和 MeterProvider。
// 遥测禁用时保持 noop 实现，不连接任何外部服务。
package telemetry
