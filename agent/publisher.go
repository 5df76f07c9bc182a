package agent

import (
	"context"
	"time"

	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/llm/tools"
	"github.com/BaSui01/tenex/types"
)

// AgentInfo 是提示词与路由可见的 Agent 摘要
type AgentInfo struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	PublicKey string `json:"pubkey,omitempty"`
}

// Spec 是项目中已知的规格文档摘要
type Spec struct {
	Name    string `json:"name" yaml:"name"`
	Summary string `json:"summary" yaml:"summary"`
}

// ProjectContext 是团队组建与提示词使用的项目元数据
type ProjectContext struct {
	Name           string `json:"name" yaml:"name"`
	Description    string `json:"description" yaml:"description"`
	RepositoryPath string `json:"repository_path,omitempty" yaml:"repository_path,omitempty"`
	Specs          []Spec `json:"specs,omitempty" yaml:"specs,omitempty"`
}

// EventContext 是一次事件处理的会话上下文
type EventContext struct {
	ConversationKey string
	RootEvent       *types.Event
	// Event 是正在回复的事件，由 Agent 在发布前填充
	Event           *types.Event
	AvailableAgents []AgentInfo
	Specs           []Spec
	Project         ProjectContext
}

// ReplyTarget 返回回复应引用的事件：优先当前事件，其次根事件
func (c EventContext) ReplyTarget() *types.Event {
	if c.Event != nil {
		return c.Event
	}
	return c.RootEvent
}

// ResponseMetadata 回复元数据
type ResponseMetadata struct {
	Model        string        `json:"model,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	Usage        llm.ChatUsage `json:"usage"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	UserPrompt   string        `json:"user_prompt,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Response 一次 Agent 回复
type Response struct {
	Content         string                    `json:"content"`
	Signal          *types.ConversationSignal `json:"signal,omitempty"`
	ToolInvocations []tools.ToolInvocation    `json:"tool_invocations,omitempty"`
	ToolResults     []tools.ToolResult        `json:"tool_results,omitempty"`
	// Kind 为 0 时按文本回复（kind 1）发布
	Kind     int              `json:"kind,omitempty"`
	Metadata ResponseMetadata `json:"metadata"`
}

// TypingOptions 输入状态指示选项
type TypingOptions struct {
	// Content 是流式调用中目前已生成的部分内容
	Content string
}

// Publisher 是 Agent 的网络发布面。
// PublishTypingIndicator 的失败由调用方记录并忽略。
type Publisher interface {
	PublishResponse(ctx context.Context, resp *Response, ectx EventContext, id *Identity, agentName string) error
	PublishTypingIndicator(ctx context.Context, agentName string, isTyping bool, ectx EventContext, id *Identity, opts *TypingOptions) error
}
