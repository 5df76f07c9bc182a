package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/tenex/types"
)

// ToolInvocation 是与来源方言无关的工具调用
type ToolInvocation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolContext 描述工具调用发生的会话上下文
type ToolContext struct {
	AgentName       string
	ConversationKey string
	Event           types.EventRef
}

// ToolResult 工具执行结果。Error 非空时 Output 为空。
type ToolResult struct {
	CallID   string        `json:"call_id"`
	Name     string        `json:"name"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed 返回调用是否失败
func (r ToolResult) Failed() bool { return r.Error != "" }

type toolContextKey struct{}

// WithToolContext 将 ToolContext 写入 ctx，供工具函数读取
func WithToolContext(ctx context.Context, tc ToolContext) context.Context {
	return context.WithValue(ctx, toolContextKey{}, tc)
}

// ToolContextFrom 读取工具调用上下文
func ToolContextFrom(ctx context.Context) (ToolContext, bool) {
	tc, ok := ctx.Value(toolContextKey{}).(ToolContext)
	return tc, ok
}
