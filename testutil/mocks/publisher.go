// RecordingPublisher 记录所有发布请求的 agent.Publisher 实现。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/tenex/agent"
)

// PublishedResponse 一次 PublishResponse 调用
type PublishedResponse struct {
	AgentName string
	PubKey    string
	Response  agent.Response
	Context   agent.EventContext
}

// TypingCall 一次 PublishTypingIndicator 调用
type TypingCall struct {
	AgentName string
	IsTyping  bool
	Content   string
}

// RecordingPublisher 记录发布调用，支持错误注入
type RecordingPublisher struct {
	mu sync.Mutex

	responses []PublishedResponse
	typing    []TypingCall

	responseErr error
	typingErr   error
}

// NewRecordingPublisher 创建 RecordingPublisher
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// WithResponseError 使 PublishResponse 返回错误
func (p *RecordingPublisher) WithResponseError(err error) *RecordingPublisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responseErr = err
	return p
}

// WithTypingError 使 PublishTypingIndicator 返回错误
func (p *RecordingPublisher) WithTypingError(err error) *RecordingPublisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typingErr = err
	return p
}

// PublishResponse 实现 agent.Publisher
func (p *RecordingPublisher) PublishResponse(ctx context.Context, resp *agent.Response, ectx agent.EventContext, id *agent.Identity, agentName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.responseErr != nil {
		return p.responseErr
	}
	rec := PublishedResponse{AgentName: agentName, Response: *resp, Context: ectx}
	if id != nil {
		rec.PubKey = id.PublicKey
	}
	p.responses = append(p.responses, rec)
	return nil
}

// PublishTypingIndicator 实现 agent.Publisher
func (p *RecordingPublisher) PublishTypingIndicator(ctx context.Context, agentName string, isTyping bool, ectx agent.EventContext, id *agent.Identity, opts *agent.TypingOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := TypingCall{AgentName: agentName, IsTyping: isTyping}
	if opts != nil {
		call.Content = opts.Content
	}
	p.typing = append(p.typing, call)
	return p.typingErr
}

// Responses 返回已发布的回复
func (p *RecordingPublisher) Responses() []PublishedResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedResponse(nil), p.responses...)
}

// ResponsesBy 返回指定 Agent 发布的回复
func (p *RecordingPublisher) ResponsesBy(agentName string) []PublishedResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PublishedResponse
	for _, r := range p.responses {
		if r.AgentName == agentName {
			out = append(out, r)
		}
	}
	return out
}

// TypingCalls 返回输入状态指示调用
func (p *RecordingPublisher) TypingCalls() []TypingCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TypingCall(nil), p.typing...)
}

// Reset 清空记录
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = nil
	p.typing = nil
}

var _ agent.Publisher = (*RecordingPublisher)(nil)
