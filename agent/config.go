package agent

import (
	"time"

	"github.com/BaSui01/tenex/agent/persistence"
	"github.com/BaSui01/tenex/internal/metrics"
	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/llm/factory"
	"github.com/BaSui01/tenex/llm/tokenizer"
	"github.com/BaSui01/tenex/llm/tools"
	"go.uber.org/zap"
)

// Config 是 Agent 目录中的一项配置
type Config struct {
	Name         string                  `json:"name" yaml:"name"`
	Role         string                  `json:"role" yaml:"role"`
	Instructions string                  `json:"instructions" yaml:"instructions"`
	SecretKey    string                  `json:"secret_key" yaml:"secret_key"`
	Tools        []string                `json:"tools,omitempty" yaml:"tools,omitempty"`
	LLM          *factory.ProviderConfig `json:"llm,omitempty" yaml:"llm,omitempty"` // 为空时使用系统默认 Provider
	Orchestrator bool                    `json:"orchestrator,omitempty" yaml:"orchestrator,omitempty"`
}

// 默认值
const (
	DefaultHistoryWindow  = 10
	DefaultTypingInterval = time.Second
)

// Deps Agent 的运行时依赖
type Deps struct {
	Provider  llm.Provider
	Publisher Publisher
	Store     persistence.ConversationStore
	Tools     tools.Executor // 可选；为空时工具调用原样发布、不执行
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	Tokenizer tokenizer.Tokenizer

	Model       string
	Temperature float32
	MaxTokens   int

	// HistoryWindow 纳入提示词的最近消息条数
	HistoryWindow int
	// HistoryTokenBudget 历史消息的 token 上限，0 表示不限制
	HistoryTokenBudget int
	// StreamTyping 为 true 时使用流式调用，并把部分内容推送到输入状态指示
	StreamTyping   bool
	TypingInterval time.Duration
}

func (d *Deps) applyDefaults() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.HistoryWindow <= 0 {
		d.HistoryWindow = DefaultHistoryWindow
	}
	if d.TypingInterval <= 0 {
		d.TypingInterval = DefaultTypingInterval
	}
	if d.Tokenizer == nil {
		d.Tokenizer = tokenizer.ForModel(d.Model)
	}
}
