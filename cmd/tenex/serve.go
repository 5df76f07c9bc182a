package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/tenex/agent/persistence"
	"github.com/BaSui01/tenex/config"
	"github.com/BaSui01/tenex/internal/cache"
	"github.com/BaSui01/tenex/internal/metrics"
	"github.com/BaSui01/tenex/internal/pool"
	"github.com/BaSui01/tenex/internal/relay"
	"github.com/BaSui01/tenex/internal/server"
	"github.com/BaSui01/tenex/internal/telemetry"
	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/llm/factory"
	"github.com/BaSui01/tenex/llm/tools"
	"github.com/BaSui01/tenex/orchestrator"
	"github.com/BaSui01/tenex/publisher"
	"github.com/BaSui01/tenex/router"
	"github.com/BaSui01/tenex/types"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting tenex",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.Int("agents", len(cfg.Agents)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runErr := a.run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
	logger.Info("tenex stopped")
	return runErr
}

// app 持有 serve 期间的全部组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	otel    *telemetry.Providers
	store   persistence.ConversationStore
	ledger  *cache.Manager
	relay   *relay.Client
	router  *router.Router
	workers *pool.KeyedPool
	metrics *metrics.Collector
	ops     *server.Manager
}

// newApp 按依赖顺序组装组件，中途失败时释放已创建的部分
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.shutdown(context.Background())
		}
	}()

	a.otel, err = telemetry.Init(ctx, cfg.Telemetry,
		telemetry.WithLogger(logger), telemetry.WithVersion(Version))
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
		a.otel = nil
	}

	a.store, err = persistence.NewConversationStore(cfg.Store.Persistence(), logger)
	if err != nil {
		return nil, fmt.Errorf("conversation store: %w", err)
	}
	if cfg.Conversation.Dedupe {
		a.ledger, err = cache.NewManager(cfg.Ledger(), logger)
		if err != nil {
			return nil, fmt.Errorf("event ledger: %w", err)
		}
	}

	collector := metrics.NewCollector(cfg.Server.MetricsNamespace, logger)
	a.metrics = collector
	providers := factory.New(logger)
	defaultProvider, err := providers.Get(cfg.LLM.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}
	former, err := newOrchestrator(cfg, providers, defaultProvider, collector, logger)
	if err != nil {
		return nil, err
	}

	var registry *tools.Registry
	if root := cfg.Project.RepositoryPath; root != "" {
		registry = tools.NewRegistry(logger)
		if err := tools.RegisterWorkspaceTools(registry, root); err != nil {
			return nil, fmt.Errorf("workspace tools: %w", err)
		}
	}

	a.relay = relay.New(cfg.Relay.Client(), logger)
	if err := a.relay.Connect(ctx); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	agents, err := router.NewAgentFactory(router.FactoryConfig{
		Catalog:            cfg.Agents,
		DefaultProvider:    defaultProvider,
		Providers:          providers,
		Tools:              registry,
		Publisher:          publisher.NewRelayPublisher(a.relay, logger),
		Store:              a.store,
		Logger:             logger,
		Metrics:            collector,
		Model:              cfg.LLM.Model,
		Temperature:        float32(cfg.LLM.Temperature),
		MaxTokens:          cfg.LLM.MaxTokens,
		HistoryWindow:      cfg.Conversation.HistoryWindow,
		HistoryTokenBudget: cfg.Conversation.HistoryTokenBudget,
		StreamTyping:       cfg.Conversation.StreamTyping,
		TypingInterval:     cfg.Conversation.TypingInterval,
	})
	if err != nil {
		return nil, err
	}

	opts := []router.Option{
		router.WithLogger(logger),
		router.WithMetrics(collector),
		router.WithProject(cfg.Project.Context()),
	}
	if a.ledger != nil {
		opts = append(opts, router.WithClaimer(a.ledger))
	}
	a.router, err = router.New(router.Deps{Store: a.store, Agents: agents, Former: former}, opts...)
	if err != nil {
		return nil, err
	}

	a.workers = pool.NewKeyedPool(pool.KeyedPoolConfig{
		Workers:   cfg.Conversation.Workers,
		QueueSize: cfg.Conversation.QueueSize,
		PanicHandler: func(key string, r any) {
			logger.Error("event handler panicked", zap.String("conversation_key", key), zap.Any("panic", r))
		},
		OnError: func(key string, err error) {
			logger.Warn("event handling failed", zap.String("conversation_key", key), zap.Error(err))
		},
	})

	if cfg.Server.Enabled {
		handler, err := a.opsHandler()
		if err != nil {
			return nil, err
		}
		a.ops = server.NewManager(handler, cfg.Server.Manager(), logger)
		if err := a.ops.Start(); err != nil {
			return nil, fmt.Errorf("ops server: %w", err)
		}
	}
	return a, nil
}

// newOrchestrator 使用带 orchestrator 标记的 Agent 的 LLM 覆盖，否则使用默认 Provider
func newOrchestrator(cfg *config.Config, providers *factory.Factory, fallback llm.Provider, m *metrics.Collector, logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	provider, model := fallback, cfg.LLM.Model
	for _, a := range cfg.Agents {
		if !a.Orchestrator || a.LLM == nil {
			continue
		}
		p, err := providers.Get(*a.LLM)
		if err != nil {
			return nil, types.NewError(types.ErrConfiguration, "orchestrator llm provider").WithCause(err).WithAgent(a.Name)
		}
		provider = p
		if a.LLM.Model != "" {
			model = a.LLM.Model
		}
	}
	return orchestrator.New(provider,
		orchestrator.WithLogger(logger),
		orchestrator.WithModel(model),
		orchestrator.WithTemperature(float32(cfg.LLM.Temperature)),
		orchestrator.WithMaxTokens(cfg.LLM.MaxTokens),
		orchestrator.WithMetrics(m),
	), nil
}

func (a *app) opsHandler() (http.Handler, error) {
	health := server.NewHealth(a.logger)
	health.Register("relay", func(ctx context.Context) error {
		if !a.relay.Connected() {
			return relay.ErrNotConnected
		}
		return nil
	})
	health.Register("store", a.store.Ping)
	if a.ledger != nil {
		health.Register("ledger", a.ledger.Ping)
	}
	mux := server.NewMux(server.Routes{
		Health:  health,
		Metrics: promhttp.Handler(),
		Version: server.VersionInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit},
		Sessions: func() any {
			return map[string]any{
				"sessions": a.router.Snapshot(),
				"workers":  a.workers.Stats(),
			}
		},
	})

	mws := []server.Middleware{server.Recovery(a.logger), server.RequestLogger(a.logger, a.metrics)}
	if auth := a.cfg.Server.Auth(); auth.Enabled() {
		mw, err := server.JWTAuth(auth, []string{"/sessions"}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("ops server auth: %w", err)
		}
		mws = append(mws, mw)
	}
	return server.Chain(mux, mws...), nil
}

// run 订阅文本事件并按会话键分派，直到 ctx 结束或订阅关闭
func (a *app) run(ctx context.Context) error {
	filter := relay.Filter{Kinds: []int{types.KindTextNote}}
	if since := a.cfg.Relay.Since; since > 0 {
		filter.Since = time.Now().Add(-since).Unix()
	}
	events, err := a.relay.Subscribe(ctx, a.cfg.Relay.SubscriptionID, filter)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	a.logger.Info("listening for events", zap.String("subscription", a.cfg.Relay.SubscriptionID))

	var opsErr <-chan error
	if a.ops != nil {
		opsErr = a.ops.Errors()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-opsErr:
			return fmt.Errorf("ops server: %w", err)
		case ev, ok := <-events:
			if !ok {
				return errors.New("relay subscription closed")
			}
			if err := a.dispatch(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// dispatch 同一会话的事件按到达顺序串行处理，不同会话并行
func (a *app) dispatch(ctx context.Context, ev *types.Event) error {
	return a.workers.Submit(ctx, ev.ConversationKey(), func(ctx context.Context) error {
		return a.router.HandleEvent(ctx, ev)
	})
}

// shutdown 按与创建相反的顺序关闭组件
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if a.workers != nil {
		a.workers.Close()
	}
	if a.relay != nil {
		errs = append(errs, a.relay.Close())
	}
	if a.ops != nil {
		errs = append(errs, a.ops.Shutdown(ctx))
	}
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.otel != nil {
		errs = append(errs, a.otel.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
