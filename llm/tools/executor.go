package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/tenex/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Executor 执行一批工具调用，结果与调用一一对应
type Executor interface {
	Execute(ctx context.Context, calls []ToolInvocation, tc ToolContext) []ToolResult
	// Schemas 返回执行器可见的工具定义，用于提示词与原生工具声明
	Schemas() []llm.ToolSchema
}

// DefaultExecutor 基于 Registry 的执行器，可限定为允许列表
type DefaultExecutor struct {
	registry    *Registry
	allowed     map[string]bool // nil 表示不限制
	concurrency int
	logger      *zap.Logger
}

// NewExecutor 创建执行器，allowed 为空时可调用全部已注册工具
func NewExecutor(registry *Registry, logger *zap.Logger, allowed ...string) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &DefaultExecutor{
		registry:    registry,
		concurrency: 4,
		logger:      logger.With(zap.String("component", "tool_executor")),
	}
	if len(allowed) > 0 {
		e.allowed = make(map[string]bool, len(allowed))
		for _, n := range allowed {
			e.allowed[n] = true
		}
	}
	return e
}

// Scoped 返回限定到 allowed 的新执行器
func (e *DefaultExecutor) Scoped(allowed []string) *DefaultExecutor {
	return NewExecutor(e.registry, e.logger, allowed...)
}

func (e *DefaultExecutor) permitted(name string) bool {
	return e.allowed == nil || e.allowed[name]
}

// Schemas 返回允许列表内已注册工具的定义
func (e *DefaultExecutor) Schemas() []llm.ToolSchema {
	if e.allowed == nil {
		return e.registry.Schemas()
	}
	var names []string
	for _, n := range e.registry.Names() {
		if e.allowed[n] {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return e.registry.Schemas(names...)
}

// Execute 并发执行，单个调用失败不影响其它调用
func (e *DefaultExecutor) Execute(ctx context.Context, calls []ToolInvocation, tc ToolContext) []ToolResult {
	results := make([]ToolResult, len(calls))
	ctx = WithToolContext(ctx, tc)

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.executeOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *DefaultExecutor) executeOne(ctx context.Context, call ToolInvocation) ToolResult {
	start := time.Now()
	result := ToolResult{CallID: call.ID, Name: call.Name}
	finish := func(errMsg string) ToolResult {
		result.Error = errMsg
		result.Duration = time.Since(start)
		return result
	}

	if !e.permitted(call.Name) {
		e.logger.Warn("tool not allowed", zap.String("name", call.Name))
		return finish(fmt.Sprintf("tool %s is not available to this agent", call.Name))
	}
	t, ok := e.registry.get(call.Name)
	if !ok {
		e.logger.Warn("tool not found", zap.String("name", call.Name))
		return finish(fmt.Sprintf("tool %s not found", call.Name))
	}
	if t.limiter != nil && !t.limiter.Allow() {
		e.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
		return finish(fmt.Sprintf("rate limit exceeded for tool %s", call.Name))
	}
	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		return finish("invalid arguments: not valid JSON")
	}

	execCtx, cancel := context.WithTimeout(ctx, t.meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := t.fn(execCtx, call.Arguments)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			e.logger.Error("tool execution failed", zap.String("name", call.Name), zap.Error(o.err))
			return finish(o.err.Error())
		}
		result.Output = decodeOutput(o.res)
		result.Duration = time.Since(start)
		e.logger.Debug("tool executed", zap.String("name", call.Name), zap.Duration("duration", result.Duration))
		return result
	case <-execCtx.Done():
		e.logger.Error("tool execution timeout", zap.String("name", call.Name), zap.Duration("timeout", t.meta.Timeout))
		return finish(fmt.Sprintf("execution timeout after %s", t.meta.Timeout))
	}
}

// decodeOutput: JSON 字符串结果去掉引号，其它 JSON 原样保留
func decodeOutput(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var _ Executor = (*DefaultExecutor)(nil)
