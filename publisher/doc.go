// Copyright (c) tenex Authors.
// Licensed under the MIT License.

// Package publisher 把 Agent 回复与输入状态签名后发布到中继。
package publisher
