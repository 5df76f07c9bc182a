package coordinator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/agent/persistence"
	"github.com/BaSui01/tenex/internal/metrics"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
	"go.uber.org/zap"
)

// Deps Coordinator 依赖
type Deps struct {
	Store   persistence.ConversationStore
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Coordinator 负责一个会话的阶段状态机
type Coordinator struct {
	team    *team.Team
	lead    *agent.Agent
	members map[string]*agent.Agent // 不含负责人
	turns   *team.TurnManager
	store   persistence.ConversationStore
	metrics *metrics.Collector
	logger  *zap.Logger

	// mu 串行化 HandleEvent
	mu sync.Mutex

	stateMu  sync.RWMutex
	stage    int
	complete bool
	batch    map[string]types.ConversationSignal // 当前阶段每个发言者最新的信号
	blocked  []string
	byPubKey map[string]string
}

// New 创建 Coordinator。负责人始终活跃；成员按第 0 阶段参与者设置活跃标记。
// members 中缺失的团队成员视为已跳过。
func New(t *team.Team, lead *agent.Agent, members map[string]*agent.Agent, deps Deps) (*Coordinator, error) {
	if t == nil || lead == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "coordinator requires a team and a lead")
	}
	if lead.Name() != t.Lead {
		return nil, types.NewError(types.ErrConfiguration,
			fmt.Sprintf("lead agent %q does not match team lead %q", lead.Name(), t.Lead))
	}
	if t.StageCount() == 0 {
		return nil, types.NewError(types.ErrTeamFormation, "team has no stages")
	}
	if deps.Store == nil {
		return nil, types.NewError(types.ErrConfiguration, "coordinator requires a conversation store")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	c := &Coordinator{
		team:     t,
		lead:     lead,
		members:  make(map[string]*agent.Agent, len(members)),
		store:    deps.Store,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With(zap.String("component", "coordinator"), zap.String("team_id", t.ID)),
		batch:    make(map[string]types.ConversationSignal),
		byPubKey: map[string]string{lead.Identity().PublicKey: lead.Name()},
	}
	for name, a := range members {
		if name == lead.Name() || a == nil {
			continue
		}
		c.members[name] = a
		c.byPubKey[a.Identity().PublicKey] = name
	}

	size := len(t.Members)
	lead.SetTeamSize(size)
	lead.SetActiveSpeaker(true)
	lead.SetPromptOverlay(c.leadOverlay)
	for _, a := range c.members {
		a.SetTeamSize(size)
	}

	s, _ := t.Stage(0)
	c.turns = team.NewTurnManager(s.Participants, s.PrimarySpeaker)
	c.applyActiveFlags(s.Participants)
	return c, nil
}

// Team 返回团队
func (c *Coordinator) Team() *team.Team { return c.team }

// Lead 返回负责人 Agent
func (c *Coordinator) Lead() *agent.Agent { return c.lead }

// Member 返回成员 Agent
func (c *Coordinator) Member(name string) (*agent.Agent, bool) {
	a, ok := c.members[name]
	return a, ok
}

// Turns 返回发言管理器
func (c *Coordinator) Turns() *team.TurnManager { return c.turns }

// StageIndex 返回当前阶段下标；完成后等于阶段数
func (c *Coordinator) StageIndex() int {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.stage
}

// IsComplete 返回计划是否已完成
func (c *Coordinator) IsComplete() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.complete
}

// ActiveSpeakers 返回当前活跃的成员（不含负责人）
func (c *Coordinator) ActiveSpeakers() []string {
	var out []string
	for _, name := range c.team.Members {
		if a, ok := c.members[name]; ok && a.IsActiveSpeaker() {
			out = append(out, name)
		}
	}
	return out
}

// HandleEvent 处理会话中的一条事件
func (c *Coordinator) HandleEvent(ctx context.Context, event *types.Event, ectx agent.EventContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if event.PubKey == c.lead.Identity().PublicKey {
		c.logger.Debug("ignoring lead-authored event", zap.String("event_id", event.ID))
		return nil
	}
	_, agentAuthored := c.byPubKey[event.PubKey]
	isUser := !agentAuthored
	if isUser {
		if err := c.recordUserMessage(ctx, event, ectx.ConversationKey); err != nil {
			return err
		}
	}

	if c.IsComplete() {
		if isUser {
			return c.lead.HandleEvent(ctx, event, ectx)
		}
		return nil
	}

	// 一条事件最多推进一个阶段；负责人只针对事件到达时的阶段发言
	stage := c.StageIndex()
	leadShouldAnswer := false
	speaker := c.turns.SelectSpeaker(isUser)
	switch {
	case speaker == "":
	case speaker == c.lead.Name():
		leadShouldAnswer = true
	default:
		member, ok := c.members[speaker]
		if !ok {
			c.logger.Warn("selected speaker is not available, lead answers instead", zap.String("speaker", speaker))
			leadShouldAnswer = isUser
			break
		}
		if err := member.HandleEvent(ctx, event, ectx); err != nil {
			return err
		}
		c.turns.RecordSpeech(speaker)
		if err := c.collectSignal(ctx, ectx, speaker); err != nil {
			return err
		}
	}
	if c.StageIndex() != stage || c.IsComplete() {
		return nil
	}

	intervene := c.hasBlocked()
	if isUser && slices.Contains(c.team.StageParticipants(stage), c.lead.Name()) {
		leadShouldAnswer = true
	}
	if !leadShouldAnswer && !intervene {
		return nil
	}

	if err := c.lead.HandleEvent(ctx, event, ectx); err != nil {
		return err
	}
	c.stateMu.Lock()
	c.blocked = nil
	c.stateMu.Unlock()

	if c.activeCount() == 0 {
		return c.collectSignal(ctx, ectx, c.lead.Name())
	}
	return c.collectLeadTieBreak(ctx, ectx)
}

func (c *Coordinator) recordUserMessage(ctx context.Context, event *types.Event, key string) error {
	msg := types.ConversationMessage{
		ID:        event.ID,
		Content:   event.Content,
		Timestamp: event.Time().UTC(),
	}
	if err := c.store.AppendMessage(ctx, key, msg); err != nil {
		return types.NewError(types.ErrConversation, "failed to record user message").WithCause(err)
	}
	return nil
}

// newestSignal 返回会话中最新消息的信号（仅当作者为 speaker）
func (c *Coordinator) newestSignal(ctx context.Context, key, speaker string) (*types.ConversationSignal, error) {
	msgs, err := c.store.GetMessages(ctx, key)
	if err != nil {
		return nil, types.NewError(types.ErrConversation, "failed to read conversation").WithCause(err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[len(msgs)-1]
	if last.AgentName != speaker || !last.HasSignal() {
		return nil, nil
	}
	return last.Signal, nil
}

// collectSignal 记录 speaker 的最新信号并评估阶段切换
func (c *Coordinator) collectSignal(ctx context.Context, ectx agent.EventContext, speaker string) error {
	sig, err := c.newestSignal(ctx, ectx.ConversationKey, speaker)
	if err != nil || sig == nil {
		return err
	}
	c.logger.Debug("signal received",
		zap.String("speaker", speaker),
		zap.String("signal", string(sig.Type)))

	c.stateMu.Lock()
	c.batch[speaker] = *sig
	if sig.Type == types.SignalBlocked {
		note := speaker + " is blocked"
		if sig.Reason != "" {
			note += ": " + sig.Reason
		}
		c.blocked = append(c.blocked, note)
	}
	c.stateMu.Unlock()

	return c.evaluate(ctx, ectx)
}

// collectLeadTieBreak 部分成员就绪但未达阈值时，由负责人的就绪信号决定切换。
// 没有成员就绪或有成员 continue 时不生效。
func (c *Coordinator) collectLeadTieBreak(ctx context.Context, ectx agent.EventContext) error {
	sig, err := c.newestSignal(ctx, ectx.ConversationKey, c.lead.Name())
	if err != nil || sig == nil {
		return err
	}
	if sig.Type != types.SignalReadyForTransition && sig.Type != types.SignalComplete {
		return nil
	}
	active := c.activeCount()
	d := EvaluateTransition(c.batchSnapshot(), active)
	if d.Continue > 0 || d.Ready == 0 || d.Transition {
		c.logger.Debug("lead ready ignored",
			zap.Int("ready", d.Ready),
			zap.Int("continue", d.Continue),
			zap.Int("active", active))
		return nil
	}
	return c.TransitionToNextStage(ctx, ectx)
}

func (c *Coordinator) evaluate(ctx context.Context, ectx agent.EventContext) error {
	active := c.activeCount()
	if active == 0 {
		active = 1
	}
	d := EvaluateTransition(c.batchSnapshot(), active)
	c.logger.Debug("transition evaluated",
		zap.Int("ready", d.Ready),
		zap.Int("blocked", d.Blocked),
		zap.Int("continue", d.Continue),
		zap.Int("active", active),
		zap.Bool("transition", d.Transition))
	if d.Transition {
		return c.TransitionToNextStage(ctx, ectx)
	}
	return nil
}

// TransitionToNextStage 进入下一阶段；越过最后一个阶段时标记完成并发布唯一的完成通知
func (c *Coordinator) TransitionToNextStage(ctx context.Context, ectx agent.EventContext) error {
	c.stateMu.Lock()
	if c.complete {
		c.stateMu.Unlock()
		return nil
	}
	c.stage++
	c.batch = make(map[string]types.ConversationSignal)
	c.blocked = nil
	total := c.team.StageCount()
	done := c.stage >= total
	if done {
		c.complete = true
	}
	idx := c.stage
	c.stateMu.Unlock()

	c.metrics.RecordStageTransition(done)

	if done {
		c.applyActiveFlags(nil)
		c.logger.Info("conversation plan complete", zap.Int("stages", total))
		return c.lead.Publish(ctx, &agent.Response{
			Content: fmt.Sprintf("All %d stages of the plan are complete.", total),
			Signal: &types.ConversationSignal{
				Type:   types.SignalComplete,
				Reason: fmt.Sprintf("%d stages completed", total),
			},
			Kind: types.KindStageNotice,
		}, ectx)
	}

	s, _ := c.team.Stage(idx)
	c.turns.UpdateStageParticipants(s.Participants, s.PrimarySpeaker)
	c.applyActiveFlags(s.Participants)
	c.logger.Info("stage transition",
		zap.Int("stage", idx),
		zap.String("purpose", s.Purpose),
		zap.Strings("participants", s.Participants))

	return c.lead.Publish(ctx, &agent.Response{
		Content: fmt.Sprintf("Moving to stage %d of %d: %s\nActive speakers: %s",
			idx+1, total, s.Purpose, strings.Join(s.Participants, ", ")),
		Kind: types.KindStageNotice,
	}, ectx)
}

func (c *Coordinator) applyActiveFlags(participants []string) {
	for name, a := range c.members {
		a.SetActiveSpeaker(slices.Contains(participants, name))
	}
	c.lead.SetActiveSpeaker(true)
}

func (c *Coordinator) currentParticipants() []string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.complete {
		return nil
	}
	return c.team.StageParticipants(c.stage)
}

// nonLeadParticipants 返回当前阶段中已构建的成员；构建时被跳过的成员不计入
func (c *Coordinator) nonLeadParticipants() []string {
	var out []string
	for _, p := range c.currentParticipants() {
		if _, ok := c.members[p]; ok && p != c.lead.Name() {
			out = append(out, p)
		}
	}
	return out
}

func (c *Coordinator) activeCount() int { return len(c.nonLeadParticipants()) }

func (c *Coordinator) batchSnapshot() []types.ConversationSignal {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	out := make([]types.ConversationSignal, 0, len(c.batch))
	for _, s := range c.batch {
		out = append(out, s)
	}
	return out
}

func (c *Coordinator) hasBlocked() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return len(c.blocked) > 0
}
