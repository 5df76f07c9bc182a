package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/tenex/internal/tlsutil"
	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/llm/providers"
	"go.uber.org/zap"
)

// Config OpenAI 兼容 Provider 配置
type Config struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	DefaultModel string

	// Timeout 为 HTTP 客户端超时，默认 60s
	Timeout time.Duration

	// EndpointPath 默认 "/v1/chat/completions"
	EndpointPath string
	// ModelsEndpoint 默认 "/v1/models"，用于健康检查
	ModelsEndpoint string

	// Headers 附加到每个请求的头
	Headers map[string]string

	// SupportsTools 为 nil 时视为支持原生工具调用
	SupportsTools *bool
}

// Provider OpenAI 兼容协议的 llm.Provider 实现
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New 创建 Provider，填充默认值
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(cfg.Timeout),
		Logger: logger.With(zap.String("component", "llm_provider"), zap.String("provider", cfg.ProviderName)),
	}
}

func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) SupportsNativeFunctionCalling() bool {
	if p.Cfg.SupportsTools != nil {
		return *p.Cfg.SupportsTools
	}
	return true
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + path
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.Cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Cfg.Headers {
		req.Header.Set(k, v)
	}
}

func (p *Provider) upstreamError(err error) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   p.Name(),
	}
}

// HealthCheck 请求模型列表接口
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, p.upstreamError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) buildBody(req *llm.ChatRequest, stream bool) providers.ChatRequest {
	model := req.Model
	if model == "" {
		model = p.Cfg.DefaultModel
	}
	body := providers.ChatRequest{
		Model:       model,
		Messages:    providers.ConvertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if p.SupportsNativeFunctionCalling() {
		body.Tools = providers.ConvertTools(req.Tools)
		if len(body.Tools) > 0 {
			body.ToolChoice = providers.ConvertToolChoice(req.ToolChoice)
		}
	}
	return body
}

func (p *Provider) post(ctx context.Context, body providers.ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: err.Error(), HTTPStatus: http.StatusBadRequest, Provider: p.Name()}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, p.upstreamError(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrorMessage(resp.Body)
		p.Logger.Debug("upstream error", zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return resp, nil
}

// Completion 发起非流式请求
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.post(ctx, p.buildBody(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire providers.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, p.upstreamError(fmt.Errorf("decode response: %w", err))
	}
	if len(wire.Choices) == 0 {
		return nil, &llm.Error{
			Code:       llm.ErrEmptyResponse,
			Message:    "upstream returned no choices",
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}

	result := providers.ToLLMChatResponse(wire, p.Name())
	if wire.Created != 0 {
		result.CreatedAt = time.Unix(wire.Created, 0)
	} else {
		result.CreatedAt = time.Now()
	}
	return result, nil
}

// Stream 发起 SSE 流式请求
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.post(ctx, p.buildBody(req, true))
	if err != nil {
		return nil, err
	}
	return StreamSSE(ctx, resp.Body, p.Name()), nil
}

// StreamSSE 解析 OpenAI 兼容的 SSE 流。
// 文本增量逐个转发；工具调用片段按 index 拼接，在流结束时随最后一个 chunk 一并发出。
func StreamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		send := func(c llm.StreamChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- c:
				return true
			}
		}
		fail := func(err error) {
			send(llm.StreamChunk{Err: &llm.Error{
				Code: llm.ErrUpstreamError, Message: err.Error(),
				HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: providerName,
			}})
		}

		calls := newCallAssembler()
		var last llm.StreamChunk
		flush := func() {
			last.Delta = llm.Message{Role: llm.RoleAssistant, ToolCalls: calls.result()}
			last.Provider = providerName
			send(last)
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64<<10), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				flush()
				return
			}

			var wire providers.ChatResponse
			if err := json.Unmarshal([]byte(data), &wire); err != nil {
				fail(fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			last.ID, last.Model = wire.ID, wire.Model
			if wire.Usage != nil {
				last.Usage = &llm.ChatUsage{
					PromptTokens:     wire.Usage.PromptTokens,
					CompletionTokens: wire.Usage.CompletionTokens,
					TotalTokens:      wire.Usage.TotalTokens,
				}
			}
			for _, choice := range wire.Choices {
				if choice.FinishReason != "" {
					last.FinishReason = choice.FinishReason
				}
				if choice.Delta == nil {
					continue
				}
				calls.add(choice.Delta.ToolCalls)
				if choice.Delta.Content == "" {
					continue
				}
				if !send(llm.StreamChunk{
					ID:       wire.ID,
					Provider: providerName,
					Model:    wire.Model,
					Delta:    llm.Message{Role: llm.RoleAssistant, Content: choice.Delta.Content},
				}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			fail(err)
			return
		}
		flush()
	}()
	return ch
}

type callAssembler struct {
	byIndex map[int]*providers.ToolCall
}

func newCallAssembler() *callAssembler {
	return &callAssembler{byIndex: make(map[int]*providers.ToolCall)}
}

func (a *callAssembler) add(deltas []providers.ToolCall) {
	for i, d := range deltas {
		idx := i
		if d.Index != nil {
			idx = *d.Index
		}
		cur, ok := a.byIndex[idx]
		if !ok {
			cur = &providers.ToolCall{}
			a.byIndex[idx] = cur
		}
		if d.ID != "" {
			cur.ID = d.ID
		}
		if d.Function.Name != "" {
			cur.Function.Name = d.Function.Name
		}
		cur.Function.Arguments += d.Function.Arguments
	}
}

func (a *callAssembler) result() []llm.ToolCall {
	if len(a.byIndex) == 0 {
		return nil
	}
	idx := make([]int, 0, len(a.byIndex))
	for i := range a.byIndex {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]llm.ToolCall, 0, len(idx))
	for _, i := range idx {
		out = append(out, providers.ToLLMToolCall(*a.byIndex[i]))
	}
	return out
}

var _ llm.Provider = (*Provider)(nil)
