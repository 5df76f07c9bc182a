package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/internal/ctxkeys"
	"github.com/BaSui01/tenex/internal/metrics"
	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
)

const instrumentationName = "github.com/BaSui01/tenex/orchestrator"

// TeamSpec 模型选出的团队
type TeamSpec struct {
	Lead    string   `json:"lead"`
	Members []string `json:"members"`
}

// Result 团队组建结果
type Result struct {
	Team             TeamSpec              `json:"team"`
	ConversationPlan team.ConversationPlan `json:"conversationPlan"`
	Reasoning        string                `json:"reasoning,omitempty"`
	Raw              string                `json:"-"`
}

// ToTeam 把结果转换为带 ID 的 team.Team
func (r *Result) ToTeam(rootEventID string) (*team.Team, error) {
	return team.New(rootEventID, r.Team.Lead, r.Team.Members, r.ConversationPlan)
}

// Option 配置 Orchestrator
type Option func(*Orchestrator)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithModel 设置模型名
func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// WithTemperature 设置采样温度
func WithTemperature(t float32) Option {
	return func(o *Orchestrator) { o.temperature = t }
}

// WithMaxTokens 设置最大输出 token
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) { o.maxTokens = n }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator 负责团队组建
type Orchestrator struct {
	provider    llm.Provider
	model       string
	temperature float32
	maxTokens   int
	metrics     *metrics.Collector
	logger      *zap.Logger
	tracer      trace.Tracer
}

// New 创建 Orchestrator
func New(provider llm.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		temperature: 0.2,
		maxTokens:   2048,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	return o
}

// FormTeam 根据请求与可用 Agent 组建团队。任何失败都返回 *TeamFormationError。
func (o *Orchestrator) FormTeam(ctx context.Context, event *types.Event, available []agent.Config, project agent.ProjectContext) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.form_team",
		trace.WithAttributes(attribute.Int("agents.available", len(available))))
	defer span.End()

	result, err := o.formTeam(ctx, event, available, project)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("team.lead", result.Team.Lead),
		attribute.Int("team.members", len(result.Team.Members)),
		attribute.Int("team.stages", len(result.ConversationPlan.Stages)),
	)
	return result, nil
}

func (o *Orchestrator) formTeam(ctx context.Context, event *types.Event, available []agent.Config, project agent.ProjectContext) (*Result, error) {
	if o.provider == nil {
		return nil, formationError("no provider configured", "", nil)
	}
	if event == nil {
		return nil, formationError("event is nil", "", nil)
	}
	if len(available) == 0 {
		return nil, formationError("no agents available", "", nil)
	}

	userPrompt := buildUserPrompt(event, available, project)

	raw, err := o.complete(ctx, event.ID, userPrompt)
	if err != nil {
		return nil, formationError("provider call failed", "", err)
	}
	result, perr := parseResult(raw)
	if perr != nil {
		o.logger.Warn("team formation reply was malformed, retrying",
			zap.String("event_id", event.ID),
			zap.Error(perr))

		retried, err := o.complete(ctx, event.ID, userPrompt+fixFormattingPrompt)
		if err != nil {
			return nil, formationError("provider call failed on retry", raw, err)
		}
		raw = retried
		result, perr = parseResult(raw)
		if perr != nil {
			return nil, formationError("could not parse team formation reply", raw, perr)
		}
	}
	result.Raw = raw

	if err := o.validate(result, available); err != nil {
		return nil, formationError("invalid team", raw, err)
	}

	o.logger.Info("team formed",
		zap.String("event_id", event.ID),
		zap.String("lead", result.Team.Lead),
		zap.Strings("members", result.Team.Members),
		zap.Int("stages", len(result.ConversationPlan.Stages)))
	return result, nil
}

func (o *Orchestrator) complete(ctx context.Context, traceID, userPrompt string) (string, error) {
	req := &llm.ChatRequest{
		TraceID:     traceID,
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
		Metadata: map[string]string{"purpose": "team_formation"},
	}
	if key, ok := ctxkeys.ConversationKey(ctx); ok {
		req.Metadata["conversation_key"] = key
	}

	start := time.Now()
	resp, err := o.provider.Completion(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	var usage llm.ChatUsage
	if resp != nil {
		usage = resp.Usage
	}
	o.metrics.RecordLLMRequest(o.provider.Name(), o.model, status, time.Since(start), usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		return "", err
	}

	msg, ok := resp.FirstMessage()
	if !ok {
		return "", &llm.Error{Code: llm.ErrEmptyResponse, Message: "empty team formation response", Provider: o.provider.Name()}
	}
	return msg.Content, nil
}

var errNoJSON = errors.New("no JSON object found")

// parseResult 提取并解析 JSON，解析失败时修复一次再试
func parseResult(raw string) (*Result, error) {
	body, ok := ExtractJSON(raw)
	if !ok {
		return nil, errNoJSON
	}
	var result Result
	err := json.Unmarshal([]byte(body), &result)
	if err == nil {
		return &result, nil
	}
	result = Result{}
	if rerr := json.Unmarshal([]byte(RepairJSON(body)), &result); rerr != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &result, nil
}

func (o *Orchestrator) validate(r *Result, available []agent.Config) error {
	known := func(name string) bool {
		return slices.ContainsFunc(available, func(c agent.Config) bool { return c.Name == name })
	}

	if r.Team.Lead == "" {
		return errors.New("no lead selected")
	}
	if !known(r.Team.Lead) {
		return fmt.Errorf("unknown lead %q", r.Team.Lead)
	}
	for _, m := range r.Team.Members {
		if !known(m) {
			return fmt.Errorf("unknown member %q", m)
		}
	}
	if !slices.Contains(r.Team.Members, r.Team.Lead) {
		o.logger.Warn("lead missing from members, prepending", zap.String("lead", r.Team.Lead))
		r.Team.Members = append([]string{r.Team.Lead}, r.Team.Members...)
	}

	// 结构校验复用 team.Team.Validate
	probe := &team.Team{Lead: r.Team.Lead, Members: r.Team.Members, Plan: r.ConversationPlan}
	if err := probe.Validate(); err != nil {
		return err
	}
	r.ConversationPlan = probe.Plan
	return nil
}
