package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/tenex/llm"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ToolFunc 工具函数签名
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// RateLimitConfig 令牌桶限流配置
type RateLimitConfig struct {
	MaxCalls int           // 窗口内最大调用数，同时作为桶容量
	Window   time.Duration // 时间窗口
}

// ToolMetadata 工具元数据
type ToolMetadata struct {
	Schema    llm.ToolSchema
	RateLimit *RateLimitConfig
	Timeout   time.Duration // 默认 30s
}

type registeredTool struct {
	fn      ToolFunc
	meta    ToolMetadata
	limiter *rate.Limiter
}

// Registry 工具注册中心
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registeredTool
	logger *zap.Logger
}

// NewRegistry 创建工具注册中心
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]*registeredTool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register 注册工具。Schema.Name 为空时使用 name，不一致时报错。
func (r *Registry) Register(name string, fn ToolFunc, meta ToolMetadata) error {
	if fn == nil {
		return fmt.Errorf("tool %s: nil function", name)
	}
	if meta.Schema.Name == "" {
		meta.Schema.Name = name
	}
	if meta.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", meta.Schema.Name, name)
	}
	if len(meta.Schema.Parameters) == 0 {
		meta.Schema.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	if meta.Timeout == 0 {
		meta.Timeout = 30 * time.Second
	}

	t := &registeredTool{fn: fn, meta: meta}
	if rl := meta.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(float64(rl.MaxCalls)/rl.Window.Seconds()), rl.MaxCalls)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.logger.Info("tool registered", zap.String("name", name), zap.Duration("timeout", meta.Timeout))
	return nil
}

// Unregister 移除工具
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(r.tools, name)
	return nil
}

func (r *Registry) get(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has 返回工具是否已注册
func (r *Registry) Has(name string) bool {
	_, ok := r.get(name)
	return ok
}

// Names 返回已注册的工具名（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schemas 返回指定工具的 Schema，names 为空时返回全部；未注册的名字被忽略
func (r *Registry) Schemas(names ...string) []llm.ToolSchema {
	if len(names) == 0 {
		names = r.Names()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSchema, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			out = append(out, t.meta.Schema)
		}
	}
	return out
}
