package router

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/agent/persistence"
	"github.com/BaSui01/tenex/internal/metrics"
	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/llm/factory"
	"github.com/BaSui01/tenex/llm/tools"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
)

// FactoryConfig AgentFactory 的配置
type FactoryConfig struct {
	Catalog         []agent.Config
	DefaultProvider llm.Provider
	Providers       *factory.Factory // 按 Agent 覆盖的 Provider，为空时按需创建
	Tools           *tools.Registry  // 为空时 Agent 不执行工具
	Publisher       agent.Publisher
	Store           persistence.ConversationStore
	Logger          *zap.Logger
	Metrics         *metrics.Collector

	Model              string
	Temperature        float32
	MaxTokens          int
	HistoryWindow      int
	HistoryTokenBudget int
	StreamTyping       bool
	TypingInterval     time.Duration
}

// AgentFactory 从配置目录构建 Agent
type AgentFactory struct {
	cfg      FactoryConfig
	byName   map[string]agent.Config
	byPubKey map[string]string
	infos    []agent.AgentInfo
	tools    *tools.DefaultExecutor
	logger   *zap.Logger
}

// NewAgentFactory 校验目录并预先计算每个 Agent 的公钥
func NewAgentFactory(cfg FactoryConfig) (*AgentFactory, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Publisher == nil {
		return nil, types.NewError(types.ErrConfiguration, "agent factory requires a publisher")
	}
	if cfg.Store == nil {
		return nil, types.NewError(types.ErrConfiguration, "agent factory requires a conversation store")
	}
	if cfg.Providers == nil {
		cfg.Providers = factory.New(cfg.Logger)
	}

	f := &AgentFactory{
		cfg:      cfg,
		byName:   make(map[string]agent.Config, len(cfg.Catalog)),
		byPubKey: make(map[string]string, len(cfg.Catalog)),
		logger:   cfg.Logger.With(zap.String("component", "agent_factory")),
	}
	for _, c := range cfg.Catalog {
		if c.Name == "" {
			return nil, types.NewError(types.ErrConfiguration, "agent name is required")
		}
		if _, dup := f.byName[c.Name]; dup {
			return nil, types.NewError(types.ErrConfiguration, fmt.Sprintf("duplicate agent %q", c.Name))
		}
		id, err := agent.NewIdentity(c.SecretKey)
		if err != nil {
			return nil, types.NewError(types.ErrConfiguration, "invalid agent identity").WithCause(err).WithAgent(c.Name)
		}
		if other, dup := f.byPubKey[id.PublicKey]; dup {
			return nil, types.NewError(types.ErrConfiguration,
				fmt.Sprintf("agents %q and %q share a secret key", other, c.Name))
		}
		f.byName[c.Name] = c
		f.byPubKey[id.PublicKey] = c.Name
		f.infos = append(f.infos, agent.AgentInfo{Name: c.Name, Role: c.Role, PublicKey: id.PublicKey})
	}
	if cfg.Tools != nil {
		f.tools = tools.NewExecutor(cfg.Tools, cfg.Logger)
	}
	return f, nil
}

// Catalog 返回配置目录
func (f *AgentFactory) Catalog() []agent.Config {
	return append([]agent.Config(nil), f.cfg.Catalog...)
}

// Infos 返回所有 Agent 的摘要
func (f *AgentFactory) Infos() []agent.AgentInfo {
	return append([]agent.AgentInfo(nil), f.infos...)
}

// Config 按名称查找配置
func (f *AgentFactory) Config(name string) (agent.Config, bool) {
	c, ok := f.byName[name]
	return c, ok
}

// NameForPubKey 把公钥映射到 Agent 名称
func (f *AgentFactory) NameForPubKey(pubKey string) (string, bool) {
	name, ok := f.byPubKey[pubKey]
	return name, ok
}

// Build 构建单个 Agent
func (f *AgentFactory) Build(name string) (*agent.Agent, error) {
	cfg, ok := f.byName[name]
	if !ok {
		return nil, types.NewError(types.ErrConfiguration, fmt.Sprintf("no configuration for agent %q", name)).WithAgent(name)
	}

	provider := f.cfg.DefaultProvider
	model := f.cfg.Model
	if cfg.LLM != nil {
		p, err := f.cfg.Providers.Get(*cfg.LLM)
		if err != nil {
			return nil, types.NewError(types.ErrConfiguration, "create agent provider").WithCause(err).WithAgent(name)
		}
		provider = p
		if cfg.LLM.Model != "" {
			model = cfg.LLM.Model
		}
	}

	var executor tools.Executor
	if f.tools != nil && len(cfg.Tools) > 0 {
		executor = f.tools.Scoped(cfg.Tools)
	}

	return agent.New(cfg, agent.Deps{
		Provider:           provider,
		Publisher:          f.cfg.Publisher,
		Store:              f.cfg.Store,
		Tools:              executor,
		Logger:             f.cfg.Logger,
		Metrics:            f.cfg.Metrics,
		Model:              model,
		Temperature:        f.cfg.Temperature,
		MaxTokens:          f.cfg.MaxTokens,
		HistoryWindow:      f.cfg.HistoryWindow,
		HistoryTokenBudget: f.cfg.HistoryTokenBudget,
		StreamTyping:       f.cfg.StreamTyping,
		TypingInterval:     f.cfg.TypingInterval,
	})
}

// BuildTeam 构建团队的负责人与其余成员。
// 负责人构建失败是致命错误；其余成员失败时记录日志并跳过。
func (f *AgentFactory) BuildTeam(t *team.Team) (*agent.Agent, map[string]*agent.Agent, error) {
	lead, err := f.Build(t.Lead)
	if err != nil {
		return nil, nil, err
	}

	members := make(map[string]*agent.Agent, len(t.Members))
	for _, name := range t.Members {
		if name == t.Lead {
			continue
		}
		a, err := f.Build(name)
		if err != nil {
			f.logger.Warn("skipping team member",
				zap.String("team_id", t.ID),
				zap.String("agent", name),
				zap.Error(err))
			continue
		}
		members[name] = a
	}
	return lead, members, nil
}
