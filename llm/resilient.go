package llm

import (
	"context"

	"github.com/BaSui01/tenex/llm/retry"
	"go.uber.org/zap"
)

// ResilientProvider 具有重试能力的 Provider 包装器
// 遵循装饰器模式：增强原有 Provider 而不修改其代码
type ResilientProvider struct {
	provider Provider
	retryer  retry.Retryer
	logger   *zap.Logger
}

// NewResilientProvider 创建具有重试能力的 Provider。
// policy 为 nil 时使用 retry.DefaultRetryPolicy。
func NewResilientProvider(provider Provider, policy *retry.RetryPolicy, logger *zap.Logger) *ResilientProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = retry.DefaultRetryPolicy()
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = IsRetryable
	}
	return &ResilientProvider{
		provider: provider,
		retryer:  retry.NewBackoffRetryer(policy, logger),
		logger:   logger.With(zap.String("component", "resilient_provider"), zap.String("provider", provider.Name())),
	}
}

// Completion 带重试的同步调用
func (p *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return retry.DoWithResultTyped(p.retryer, ctx, func() (*ChatResponse, error) {
		return p.provider.Completion(ctx, req)
	})
}

// Stream 只对建立连接阶段重试，流开始后不再重试
func (p *ResilientProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	return retry.DoWithResultTyped(p.retryer, ctx, func() (<-chan StreamChunk, error) {
		return p.provider.Stream(ctx, req)
	})
}

func (p *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return p.provider.HealthCheck(ctx)
}

func (p *ResilientProvider) Name() string { return p.provider.Name() }

func (p *ResilientProvider) SupportsNativeFunctionCalling() bool {
	return p.provider.SupportsNativeFunctionCalling()
}

// Unwrap 返回被包装的 Provider
func (p *ResilientProvider) Unwrap() Provider { return p.provider }

var _ Provider = (*ResilientProvider)(nil)
