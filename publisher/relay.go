package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/types"
)

// EventSink 接收已签名的事件，*relay.Client 实现了该接口
type EventSink interface {
	Publish(ctx context.Context, ev *types.Event) error
}

// RelayPublisher 实现 agent.Publisher
type RelayPublisher struct {
	sink   EventSink
	logger *zap.Logger
	now    func() time.Time
}

var _ agent.Publisher = (*RelayPublisher)(nil)

// NewRelayPublisher 创建发布器
func NewRelayPublisher(sink EventSink, logger *zap.Logger) *RelayPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayPublisher{
		sink:   sink,
		logger: logger.With(zap.String("component", "relay_publisher")),
		now:    time.Now,
	}
}

// PublishResponse 以回复形式发布 Agent 的内容
func (p *RelayPublisher) PublishResponse(ctx context.Context, resp *agent.Response, ectx agent.EventContext, id *agent.Identity, agentName string) error {
	if resp == nil {
		return fmt.Errorf("publish response: nil response")
	}
	kind := resp.Kind
	if kind == 0 {
		kind = types.KindTextNote
	}

	tags := replyTags(ectx, id)
	if resp.Signal != nil {
		tags = append(tags, types.Tag{"signal", string(resp.Signal.Type), resp.Signal.Reason})
	}
	for _, inv := range resp.ToolInvocations {
		tags = append(tags, types.Tag{"tool", inv.Name, inv.ID})
	}
	if resp.Metadata.Model != "" {
		tags = append(tags, types.Tag{"llm-model", resp.Metadata.Model})
	}

	ev := &types.Event{
		CreatedAt: p.now().Unix(),
		Kind:      kind,
		Tags:      tags,
		Content:   resp.Content,
	}
	if err := p.publish(ctx, ev, id); err != nil {
		return fmt.Errorf("publish response from %s: %w", agentName, err)
	}
	p.logger.Debug("response published",
		zap.String("agent", agentName),
		zap.String("event_id", ev.ID),
		zap.Int("kind", kind),
		zap.String("conversation_key", ectx.ConversationKey))
	return nil
}

// PublishTypingIndicator 发布输入开始或结束事件
func (p *RelayPublisher) PublishTypingIndicator(ctx context.Context, agentName string, isTyping bool, ectx agent.EventContext, id *agent.Identity, opts *agent.TypingOptions) error {
	kind := types.KindTypingStop
	if isTyping {
		kind = types.KindTypingStart
	}
	ev := &types.Event{
		CreatedAt: p.now().Unix(),
		Kind:      kind,
		Tags:      replyTags(ectx, id),
	}
	if opts != nil {
		ev.Content = opts.Content
	}
	if err := p.publish(ctx, ev, id); err != nil {
		return fmt.Errorf("publish typing indicator from %s: %w", agentName, err)
	}
	return nil
}

func (p *RelayPublisher) publish(ctx context.Context, ev *types.Event, id *agent.Identity) error {
	if id == nil {
		return fmt.Errorf("missing signing identity")
	}
	if err := id.SignEvent(ev); err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	return p.sink.Publish(ctx, ev)
}

// replyTags 生成 E（会话根）、e（被回复事件）与 p（被回复作者）标签
func replyTags(ectx agent.EventContext, id *agent.Identity) []types.Tag {
	var tags []types.Tag
	if ectx.ConversationKey != "" {
		tags = append(tags, types.Tag{"E", ectx.ConversationKey})
	}
	target := ectx.ReplyTarget()
	if target == nil {
		return tags
	}
	tags = append(tags, types.Tag{"e", target.ID})
	if target.PubKey != "" && (id == nil || target.PubKey != id.PublicKey) {
		tags = append(tags, types.Tag{"p", target.PubKey})
	}
	return tags
}
