package factory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/llm/providers/openaicompat"
	"github.com/BaSui01/tenex/llm/retry"
	"go.uber.org/zap"
)

// ProviderConfig 是工厂接受的通用配置
type ProviderConfig struct {
	Provider      string            `json:"provider" yaml:"provider"`
	APIKey        string            `json:"api_key" yaml:"api_key"`
	BaseURL       string            `json:"base_url" yaml:"base_url"`
	Model         string            `json:"model" yaml:"model"`
	Timeout       time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries    int               `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	SupportsTools *bool             `json:"supports_tools,omitempty" yaml:"supports_tools,omitempty"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// 已知的 OpenAI 兼容服务默认地址
var knownBaseURLs = map[string]string{
	"openai":     "https://api.openai.com",
	"deepseek":   "https://api.deepseek.com",
	"qwen":       "https://dashscope.aliyuncs.com/compatible-mode",
	"openrouter": "https://openrouter.ai/api",
	"ollama":     "http://localhost:11434",
}

// 默认不支持原生工具调用的服务，走文本标记路径
var textOnlyProviders = map[string]bool{
	"ollama": true,
}

// NewProviderFromConfig 根据配置创建 Provider。
// MaxRetries > 0 时外层包装 llm.ResilientProvider。
func NewProviderFromConfig(cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = "openai"
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		known, ok := knownBaseURLs[name]
		if !ok {
			return nil, fmt.Errorf("provider %q requires base_url", name)
		}
		baseURL = known
	}

	supportsTools := cfg.SupportsTools
	if supportsTools == nil && textOnlyProviders[name] {
		v := false
		supportsTools = &v
	}

	var p llm.Provider = openaicompat.New(openaicompat.Config{
		ProviderName:  name,
		APIKey:        cfg.APIKey,
		BaseURL:       baseURL,
		DefaultModel:  cfg.Model,
		Timeout:       cfg.Timeout,
		Headers:       cfg.Headers,
		SupportsTools: supportsTools,
	}, logger)

	if cfg.MaxRetries > 0 {
		policy := retry.DefaultRetryPolicy()
		policy.MaxRetries = cfg.MaxRetries
		p = llm.NewResilientProvider(p, policy, logger)
	}
	return p, nil
}

// Factory 缓存已创建的 Provider，相同配置返回同一实例
type Factory struct {
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]llm.Provider
}

// New 创建工厂
func New(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{logger: logger, cache: make(map[string]llm.Provider)}
}

// Get 返回配置对应的 Provider，首次调用时创建
func (f *Factory) Get(cfg ProviderConfig) (llm.Provider, error) {
	key := cacheKey(cfg)
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.cache[key]; ok {
		return p, nil
	}
	p, err := NewProviderFromConfig(cfg, f.logger)
	if err != nil {
		return nil, err
	}
	f.cache[key] = p
	return p, nil
}

func cacheKey(cfg ProviderConfig) string {
	tools := "default"
	if cfg.SupportsTools != nil {
		tools = fmt.Sprint(*cfg.SupportsTools)
	}
	return strings.Join([]string{
		strings.ToLower(cfg.Provider), cfg.BaseURL, cfg.APIKey, cfg.Model,
		cfg.Timeout.String(), fmt.Sprint(cfg.MaxRetries), tools,
	}, "|")
}
