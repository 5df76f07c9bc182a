// Package ctxkeys 定义跨包传递的 context 键。
package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	conversationKey contextKey = "conversation_key"
	eventIDKey      contextKey = "event_id"
	agentKey        contextKey = "agent"
)

// WithConversationKey 设置会话键
func WithConversationKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, conversationKey, key)
}

// ConversationKey 获取会话键
func ConversationKey(ctx context.Context) (string, bool) {
	return stringValue(ctx, conversationKey)
}

// WithEventID 设置正在处理的事件 ID
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDKey, id)
}

// EventID 获取正在处理的事件 ID
func EventID(ctx context.Context) (string, bool) {
	return stringValue(ctx, eventIDKey)
}

// WithAgent 设置当前发言的 Agent
func WithAgent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentKey, name)
}

// Agent 获取当前发言的 Agent
func Agent(ctx context.Context) (string, bool) {
	return stringValue(ctx, agentKey)
}

// Fields 把 context 中已设置的键转成日志字段
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if v, ok := ConversationKey(ctx); ok {
		fields = append(fields, zap.String("conversation_key", v))
	}
	if v, ok := EventID(ctx); ok {
		fields = append(fields, zap.String("event_id", v))
	}
	if v, ok := Agent(ctx); ok {
		fields = append(fields, zap.String("agent", v))
	}
	return fields
}

func stringValue(ctx context.Context, k contextKey) (string, bool) {
	v, ok := ctx.Value(k).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
