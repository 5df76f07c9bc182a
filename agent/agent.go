package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/tenex/internal/ctxkeys"
	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/llm/tools"
	"github.com/BaSui01/tenex/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/tenex/agent"

// Agent 是一个参与会话的 LLM Agent
type Agent struct {
	cfg      Config
	identity *Identity
	deps     Deps
	parser   tools.Parser
	tracer   trace.Tracer
	logger   *zap.Logger

	mu       sync.RWMutex
	active   bool
	teamSize int
	overlay  PromptOverlay
}

// New 创建 Agent
func New(cfg Config, deps Deps) (*Agent, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, types.NewError(types.ErrConfiguration, "agent name is required")
	}
	if deps.Provider == nil {
		return nil, types.NewError(types.ErrConfiguration, "agent provider is required").WithAgent(cfg.Name)
	}
	if deps.Publisher == nil {
		return nil, types.NewError(types.ErrConfiguration, "agent publisher is required").WithAgent(cfg.Name)
	}
	if deps.Store == nil {
		return nil, types.NewError(types.ErrConfiguration, "conversation store is required").WithAgent(cfg.Name)
	}
	id, err := NewIdentity(cfg.SecretKey)
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "invalid agent identity").WithCause(err).WithAgent(cfg.Name)
	}
	deps.applyDefaults()

	return &Agent{
		cfg:      cfg,
		identity: id,
		deps:     deps,
		parser:   tools.ParserFor(deps.Provider),
		tracer:   otel.Tracer(instrumentationName),
		logger:   deps.Logger.With(zap.String("component", "agent"), zap.String("agent", cfg.Name)),
		teamSize: 1,
	}, nil
}

// Name 返回 Agent 名称
func (a *Agent) Name() string { return a.cfg.Name }

// Config 返回 Agent 配置
func (a *Agent) Config() Config { return a.cfg }

// Identity 返回签名身份
func (a *Agent) Identity() *Identity { return a.identity }

// Info 返回 Agent 摘要
func (a *Agent) Info() AgentInfo {
	return AgentInfo{Name: a.cfg.Name, Role: a.cfg.Role, PublicKey: a.identity.PublicKey}
}

// SetActiveSpeaker 设置是否为当前阶段的活跃发言者
func (a *Agent) SetActiveSpeaker(active bool) {
	a.mu.Lock()
	a.active = active
	a.mu.Unlock()
}

// IsActiveSpeaker 返回是否为活跃发言者
func (a *Agent) IsActiveSpeaker() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

// SetTeamSize 设置团队规模提示
func (a *Agent) SetTeamSize(n int) {
	a.mu.Lock()
	a.teamSize = n
	a.mu.Unlock()
}

// TeamSize 返回团队规模提示
func (a *Agent) TeamSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.teamSize
}

// SetPromptOverlay 设置系统提示词叠加层
func (a *Agent) SetPromptOverlay(o PromptOverlay) {
	a.mu.Lock()
	a.overlay = o
	a.mu.Unlock()
}

func (a *Agent) promptOverlay() PromptOverlay {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.overlay
}

// HandleEvent 处理入站事件：非活跃或自己发布的事件直接忽略，
// 否则生成回复并发布。
func (a *Agent) HandleEvent(ctx context.Context, event *types.Event, ectx EventContext) error {
	if !a.IsActiveSpeaker() {
		a.logger.Debug("not an active speaker, ignoring event", zap.String("event_id", event.ID))
		return nil
	}
	if event.PubKey == a.identity.PublicKey {
		a.logger.Warn("ignoring own event", zap.String("event_id", event.ID))
		return nil
	}

	resp, err := a.GenerateResponse(ctx, event, ectx)
	if err != nil {
		return err
	}
	ectx.Event = event
	return a.publishWithTools(ctx, resp, ectx)
}

// Publish 以本 Agent 身份发布一条回复
func (a *Agent) Publish(ctx context.Context, resp *Response, ectx EventContext) error {
	if err := a.deps.Publisher.PublishResponse(ctx, resp, ectx, a.identity, a.cfg.Name); err != nil {
		return types.NewError(types.ErrPublish, "failed to publish response").WithCause(err).WithAgent(a.cfg.Name)
	}
	return nil
}

// publishWithTools 两阶段发布：先发布不含工具调用的文本，执行工具后再发布结果
func (a *Agent) publishWithTools(ctx context.Context, resp *Response, ectx EventContext) error {
	if len(resp.ToolInvocations) == 0 || a.deps.Tools == nil {
		return a.Publish(ctx, resp, ectx)
	}

	if strings.TrimSpace(resp.Content) != "" {
		first := *resp
		first.ToolInvocations = nil
		if err := a.Publish(ctx, &first, ectx); err != nil {
			return err
		}
	}

	tc := tools.ToolContext{
		AgentName:       a.cfg.Name,
		ConversationKey: ectx.ConversationKey,
	}
	if target := ectx.ReplyTarget(); target != nil {
		tc.Event = target.Reference()
	}
	results := a.deps.Tools.Execute(ctx, resp.ToolInvocations, tc)
	for _, r := range results {
		a.deps.Metrics.RecordToolCall(r.Name, r.Failed())
	}

	followUp := &Response{
		Content:         formatToolResults(results),
		ToolInvocations: resp.ToolInvocations,
		ToolResults:     results,
		Kind:            types.KindToolResult,
		Metadata:        resp.Metadata,
	}
	return a.Publish(ctx, followUp, ectx)
}

func formatToolResults(results []tools.ToolResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		if r.Failed() {
			fmt.Fprintf(&b, "%s (%s) failed: %s", r.Name, r.CallID, r.Error)
			continue
		}
		fmt.Fprintf(&b, "%s (%s): %s", r.Name, r.CallID, r.Output)
	}
	return b.String()
}

// GenerateResponse 生成回复并追加到会话历史
func (a *Agent) GenerateResponse(ctx context.Context, event *types.Event, ectx EventContext) (*Response, error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "agent.generate_response",
		trace.WithAttributes(
			attribute.String("agent.name", a.cfg.Name),
			attribute.String("conversation.key", ectx.ConversationKey),
			attribute.String("event.id", event.ID),
		),
	)
	defer span.End()
	ctx = ctxkeys.WithAgent(ctx, a.cfg.Name)

	resp, err := a.generate(ctx, event, ectx)
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	a.deps.Metrics.RecordAgentResponse(a.cfg.Name, status, time.Since(start))
	return resp, err
}

func (a *Agent) generate(ctx context.Context, event *types.Event, ectx EventContext) (*Response, error) {
	history, err := a.deps.Store.GetMessages(ctx, ectx.ConversationKey)
	if err != nil {
		return nil, types.NewError(types.ErrConversation, "failed to load conversation history").
			WithCause(err).WithAgent(a.cfg.Name)
	}

	native := a.deps.Provider.SupportsNativeFunctionCalling()
	var schemas []llm.ToolSchema
	if a.deps.Tools != nil {
		schemas = a.deps.Tools.Schemas()
	}
	systemPrompt := a.buildSystemPrompt(ectx, schemas, native)

	messages := make([]llm.Message, 0, a.deps.HistoryWindow+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, a.historyMessages(history, event)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: event.Content})

	req := &llm.ChatRequest{
		TraceID:     event.ID,
		Model:       a.deps.Model,
		Messages:    messages,
		MaxTokens:   a.deps.MaxTokens,
		Temperature: a.deps.Temperature,
		Metadata: map[string]string{
			"agent":            a.cfg.Name,
			"conversation_key": ectx.ConversationKey,
		},
	}
	if native {
		req.Tools = append(append([]llm.ToolSchema{}, schemas...), SignalTool())
		req.ToolChoice = "auto"
	}

	ectx.Event = event
	llmResp, err := a.callProvider(ctx, req, ectx)
	if err != nil {
		var code llm.ErrorCode
		var llmErr *llm.Error
		if errors.As(err, &llmErr) {
			code = llmErr.Code
		}
		a.logger.Error("llm call failed", append(ctxkeys.Fields(ctx),
			zap.String("code", string(code)), zap.Error(err))...)
		return nil, types.NewError(types.ErrLLM, "llm completion failed").
			WithCause(err).WithRetryable(llm.IsRetryable(err)).WithAgent(a.cfg.Name)
	}

	msg, ok := llmResp.FirstMessage()
	if !ok {
		return nil, types.NewError(types.ErrLLM, "llm returned no choices").WithAgent(a.cfg.Name)
	}

	text, calls := a.parser.Parse(msg)
	var signal *types.ConversationSignal
	invocations := make([]tools.ToolInvocation, 0, len(calls))
	for _, c := range calls {
		if c.Name == SignalToolName {
			if s, ok := SignalFromArguments(c.Arguments); ok && signal == nil {
				signal = s
			}
			continue
		}
		invocations = append(invocations, c)
	}
	parsed := ParseSignal(text)
	if signal == nil {
		signal = parsed.Signal
	}

	stored := types.ConversationMessage{
		ID:        uuid.NewString(),
		AgentName: a.cfg.Name,
		Content:   parsed.Content,
		Timestamp: time.Now().UTC(),
		Signal:    signal,
	}
	if err := a.deps.Store.AppendMessage(ctx, ectx.ConversationKey, stored); err != nil {
		return nil, types.NewError(types.ErrConversation, "failed to append message").
			WithCause(err).WithAgent(a.cfg.Name)
	}
	if signal != nil {
		a.deps.Metrics.RecordSignal(a.cfg.Name, string(signal.Type))
		a.logger.Debug("signal emitted",
			zap.String("signal", string(signal.Type)),
			zap.String("reason", signal.Reason))
	}

	if len(invocations) == 0 {
		invocations = nil
	}
	return &Response{
		Content:         parsed.Content,
		Signal:          signal,
		ToolInvocations: invocations,
		Metadata: ResponseMetadata{
			Model:        llmResp.Model,
			Provider:     providerName(llmResp, a.deps.Provider),
			Usage:        llmResp.Usage,
			SystemPrompt: systemPrompt,
			UserPrompt:   event.Content,
		},
	}, nil
}

// callProvider 调用 LLM，期间发布输入状态指示
func (a *Agent) callProvider(ctx context.Context, req *llm.ChatRequest, ectx EventContext) (*llm.ChatResponse, error) {
	start := time.Now()
	a.typing(ctx, true, ectx, nil)
	defer a.typing(ctx, false, ectx, nil)

	var (
		resp *llm.ChatResponse
		err  error
	)
	if a.deps.StreamTyping {
		resp, err = a.streamCompletion(ctx, req, ectx)
	} else {
		resp, err = a.deps.Provider.Completion(ctx, req)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	var usage llm.ChatUsage
	model := req.Model
	if resp != nil {
		usage = resp.Usage
		if resp.Model != "" {
			model = resp.Model
		}
	}
	a.deps.Metrics.RecordLLMRequest(a.deps.Provider.Name(), model, status, time.Since(start),
		usage.PromptTokens, usage.CompletionTokens)
	return resp, err
}

func (a *Agent) streamCompletion(ctx context.Context, req *llm.ChatRequest, ectx EventContext) (*llm.ChatResponse, error) {
	ch, err := a.deps.Provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	var last time.Time
	return llm.CollectStream(ch, func(accumulated string) {
		if time.Since(last) < a.deps.TypingInterval {
			return
		}
		last = time.Now()
		a.typing(ctx, true, ectx, &TypingOptions{Content: accumulated})
	})
}

// typing 发布输入状态指示，失败只记录日志
func (a *Agent) typing(ctx context.Context, isTyping bool, ectx EventContext, opts *TypingOptions) {
	if err := a.deps.Publisher.PublishTypingIndicator(ctx, a.cfg.Name, isTyping, ectx, a.identity, opts); err != nil {
		a.logger.Debug("typing indicator failed", zap.Bool("typing", isTyping), zap.Error(err))
	}
}

func providerName(resp *llm.ChatResponse, p llm.Provider) string {
	if resp.Provider != "" {
		return resp.Provider
	}
	return p.Name()
}
