package router

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/agent/persistence"
	"github.com/BaSui01/tenex/coordinator"
	"github.com/BaSui01/tenex/internal/ctxkeys"
	"github.com/BaSui01/tenex/internal/metrics"
	"github.com/BaSui01/tenex/orchestrator"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
)

const instrumentationName = "github.com/BaSui01/tenex/router"

// 团队来源
const (
	SourceMention      = "mention"
	SourceOrchestrator = "orchestrator"
	SourceRestored     = "restored"
)

// TeamFormer 为新会话组建团队
type TeamFormer interface {
	FormTeam(ctx context.Context, event *types.Event, available []agent.Config, project agent.ProjectContext) (*orchestrator.Result, error)
}

// EventClaimer 登记已处理的事件，Claim 返回 false 表示事件已被处理过
type EventClaimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Deps Router 的依赖
type Deps struct {
	Store  persistence.ConversationStore
	Agents *AgentFactory
	Former TeamFormer // 为空时只支持提及快速路径
}

// Option 配置 Router
type Option func(*Router)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Router) { r.metrics = m }
}

// WithProject 设置项目元数据
func WithProject(p agent.ProjectContext) Option {
	return func(r *Router) { r.project = p }
}

// WithClaimer 设置事件登记簿，用于跳过重启后回放的事件
func WithClaimer(c EventClaimer) Option {
	return func(r *Router) { r.claimer = c }
}

// WithSessionStore 使用外部会话缓存
func WithSessionStore(s *SessionStore) Option {
	return func(r *Router) {
		if s != nil {
			r.sessions = s
		}
	}
}

// Router 事件路由
type Router struct {
	store    persistence.ConversationStore
	agents   *AgentFactory
	former   TeamFormer
	claimer  EventClaimer
	sessions *SessionStore
	project  agent.ProjectContext
	metrics  *metrics.Collector
	base     *zap.Logger
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New 创建 Router
func New(deps Deps, opts ...Option) (*Router, error) {
	if deps.Store == nil {
		return nil, types.NewError(types.ErrConfiguration, "router requires a conversation store")
	}
	if deps.Agents == nil {
		return nil, types.NewError(types.ErrConfiguration, "router requires an agent factory")
	}
	r := &Router{
		store:    deps.Store,
		agents:   deps.Agents,
		former:   deps.Former,
		sessions: NewSessionStore(),
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.base = r.logger
	r.logger = r.logger.With(zap.String("component", "router"))
	return r, nil
}

// HandleEvent 把事件分派到所属会话的 Coordinator
func (r *Router) HandleEvent(ctx context.Context, event *types.Event) (err error) {
	if event == nil {
		return types.NewError(types.ErrInvalidRequest, "event is nil")
	}
	start := time.Now()
	key := event.ConversationKey()

	ctx, span := r.tracer.Start(ctx, "router.handle_event", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.Int("event.kind", event.Kind),
		attribute.String("conversation.key", key),
	))
	status := "handled"
	defer func() {
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("status", status))
		span.End()
		r.metrics.RecordEvent(status, time.Since(start))
	}()

	if event.Kind != types.KindTextNote {
		status = "ignored"
		return nil
	}
	ctx = ctxkeys.WithEventID(ctxkeys.WithConversationKey(ctx, key), event.ID)

	if r.claimer != nil && event.ID != "" {
		fresh, cerr := r.claimer.Claim(ctx, event.ID)
		switch {
		case cerr != nil:
			r.logger.Warn("event ledger unavailable, handling anyway",
				zap.String("event_id", event.ID), zap.Error(cerr))
		case !fresh:
			status = "duplicate"
			return nil
		default:
			defer func() {
				if err != nil {
					if rerr := r.claimer.Release(context.WithoutCancel(ctx), event.ID); rerr != nil {
						r.logger.Warn("release event failed", zap.String("event_id", event.ID), zap.Error(rerr))
					}
				}
			}()
		}
	}

	sess, err := r.session(ctx, event, key)
	if err != nil {
		r.logger.Error("resolve session failed",
			zap.String("event_id", event.ID),
			zap.String("conversation_key", key),
			zap.Error(err))
		return err
	}
	if sess == nil {
		status = "ignored"
		return nil
	}

	ectx := agent.EventContext{
		ConversationKey: key,
		RootEvent:       sess.RootEvent,
		AvailableAgents: r.agents.Infos(),
		Specs:           r.project.Specs,
		Project:         r.project,
	}
	return sess.Coordinator.HandleEvent(ctx, event, ectx)
}

func (r *Router) session(ctx context.Context, event *types.Event, key string) (*Session, error) {
	sess, created, err := r.sessions.GetOrCreate(ctx, key, func(ctx context.Context) (*Session, error) {
		return r.createSession(ctx, event, key)
	})
	if err != nil {
		return nil, err
	}
	if created {
		r.metrics.SetActiveSessions(r.sessions.Len())
		r.logger.Info("session created",
			zap.String("conversation_key", key),
			zap.String("source", sess.Source),
			zap.String("lead", sess.Team.Lead),
			zap.Strings("members", sess.Team.Members))
	}
	return sess, nil
}

func (r *Router) createSession(ctx context.Context, event *types.Event, key string) (*Session, error) {
	t, err := r.store.GetTeam(ctx, key)
	if err != nil {
		return nil, types.NewError(types.ErrConversation, "load team").WithCause(err)
	}

	source := SourceRestored
	if t == nil {
		if name, ok := r.agents.NameForPubKey(event.PubKey); ok {
			// 没有团队的会话不由 Agent 自己的消息发起
			r.logger.Debug("ignoring agent-authored event without a team",
				zap.String("event_id", event.ID),
				zap.String("agent", name))
			return nil, nil
		}
		t, source, err = r.formTeam(ctx, event, key)
		if err != nil {
			r.metrics.RecordTeamFormation(source, "error")
			return nil, err
		}
		if err := r.store.SaveTeam(ctx, key, t); err != nil {
			return nil, types.NewError(types.ErrConversation, "save team").WithCause(err)
		}
	}

	lead, members, err := r.agents.BuildTeam(t)
	if err != nil {
		r.metrics.RecordTeamFormation(source, "error")
		return nil, err
	}
	coord, err := coordinator.New(t, lead, members, coordinator.Deps{
		Store:   r.store,
		Logger:  r.base,
		Metrics: r.metrics,
	})
	if err != nil {
		r.metrics.RecordTeamFormation(source, "error")
		return nil, err
	}
	r.metrics.RecordTeamFormation(source, "success")

	var root *types.Event
	if event.ID == key {
		root = event
	}
	return &Session{
		Key:         key,
		Team:        t,
		Coordinator: coord,
		RootEvent:   root,
		Source:      source,
		CreatedAt:   time.Now(),
	}, nil
}

// formTeam 提及已知 Agent 时直接组建单 Agent 团队，否则交给 TeamFormer
func (r *Router) formTeam(ctx context.Context, event *types.Event, key string) (*team.Team, string, error) {
	for _, pk := range event.Mentions() {
		if name, ok := r.agents.NameForPubKey(pk); ok {
			return team.SingleAgent(key, name, ""), SourceMention, nil
		}
	}

	if r.former == nil {
		return nil, SourceOrchestrator, types.NewError(types.ErrConfiguration, "no team former configured")
	}
	result, err := r.former.FormTeam(ctx, event, r.agents.Catalog(), r.project)
	if err != nil {
		return nil, SourceOrchestrator, err
	}
	t, err := result.ToTeam(key)
	if err != nil {
		return nil, SourceOrchestrator, &orchestrator.TeamFormationError{Message: "invalid team", Raw: result.Raw, Cause: err}
	}
	return t, SourceOrchestrator, nil
}

// Session 返回已缓存的会话
func (r *Router) Session(key string) (*Session, bool) {
	return r.sessions.Get(key)
}

// Sessions 返回缓存的会话数
func (r *Router) Sessions() int {
	return r.sessions.Len()
}

// Evict 移除缓存的会话，团队仍保留在存储中，下一条事件会重建
func (r *Router) Evict(key string) bool {
	ok := r.sessions.Delete(key)
	if ok {
		r.metrics.SetActiveSessions(r.sessions.Len())
	}
	return ok
}

// Snapshot 按键排序返回所有缓存会话的摘要
func (r *Router) Snapshot() []SessionInfo {
	keys := r.sessions.Keys()
	out := make([]SessionInfo, 0, len(keys))
	for _, k := range keys {
		if s, ok := r.sessions.Get(k); ok {
			out = append(out, s.Info())
		}
	}
	return out
}
