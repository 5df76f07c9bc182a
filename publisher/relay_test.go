package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/llm/tools"
	"github.com/BaSui01/tenex/testutil/fixtures"
	"github.com/BaSui01/tenex/types"
)

type sink struct {
	mu     sync.Mutex
	events []*types.Event
	err    error
}

func (s *sink) Publish(_ context.Context, ev *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *sink) last(t *testing.T) *types.Event {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.events)
	return s.events[len(s.events)-1]
}

func newPublisher(t *testing.T) (*RelayPublisher, *sink, *agent.Identity) {
	t.Helper()
	s := &sink{}
	p := NewRelayPublisher(s, nil)
	p.now = func() time.Time { return time.Unix(1700000100, 0) }
	id, err := agent.NewIdentity("secret-coder")
	require.NoError(t, err)
	return p, s, id
}

func TestPublishResponse_ReplyTags(t *testing.T) {
	p, s, id := newPublisher(t)
	root := fixtures.UserEvent("root-1", "build it")
	reply := fixtures.ReplyEvent("ev-2", "root-1", "user-pubkey", "and test it")

	resp := &agent.Response{
		Content:         "done",
		Signal:          &types.ConversationSignal{Type: types.SignalReadyForTransition, Reason: "tests pass"},
		ToolInvocations: []tools.ToolInvocation{{ID: "call_1", Name: "shell"}},
		Metadata:        agent.ResponseMetadata{Model: "gpt-test"},
	}
	ectx := agent.EventContext{ConversationKey: "root-1", RootEvent: root, Event: reply}
	require.NoError(t, p.PublishResponse(context.Background(), resp, ectx, id, "coder"))

	ev := s.last(t)
	assert.Equal(t, types.KindTextNote, ev.Kind)
	assert.Equal(t, "done", ev.Content)
	assert.Equal(t, int64(1700000100), ev.CreatedAt)
	assert.Equal(t, id.PublicKey, ev.PubKey)
	assert.Equal(t, []types.Tag{
		{"E", "root-1"},
		{"e", "ev-2"},
		{"p", "user-pubkey"},
		{"signal", "ready_for_transition", "tests pass"},
		{"tool", "shell", "call_1"},
		{"llm-model", "gpt-test"},
	}, ev.Tags)
	assert.True(t, agent.VerifyEvent(ev))
	assert.Equal(t, "root-1", ev.ConversationKey())
}

func TestPublishResponse_KindAndSelfReply(t *testing.T) {
	p, s, id := newPublisher(t)
	own := fixtures.ReplyEvent("ev-3", "root-1", id.PublicKey, "my earlier message")

	resp := &agent.Response{Content: "All stages complete.", Kind: types.KindStageNotice}
	require.NoError(t, p.PublishResponse(context.Background(), resp, agent.EventContext{ConversationKey: "root-1", Event: own}, id, "coder"))

	ev := s.last(t)
	assert.Equal(t, types.KindStageNotice, ev.Kind)
	assert.Equal(t, []types.Tag{{"E", "root-1"}, {"e", "ev-3"}}, ev.Tags, "no p tag for the agent itself")
}

func TestPublishResponse_FallsBackToRootEvent(t *testing.T) {
	p, s, id := newPublisher(t)
	root := fixtures.UserEvent("root-1", "hello")

	require.NoError(t, p.PublishResponse(context.Background(), &agent.Response{Content: "hi"},
		agent.EventContext{ConversationKey: "root-1", RootEvent: root}, id, "coder"))
	assert.Equal(t, []types.Tag{{"E", "root-1"}, {"e", "root-1"}, {"p", "user-pubkey"}}, s.last(t).Tags)
}

func TestPublishTypingIndicator(t *testing.T) {
	p, s, id := newPublisher(t)
	ectx := agent.EventContext{ConversationKey: "root-1", Event: fixtures.UserEvent("root-1", "hello")}
	ctx := context.Background()

	require.NoError(t, p.PublishTypingIndicator(ctx, "coder", true, ectx, id, &agent.TypingOptions{Content: "partial"}))
	start := s.last(t)
	assert.Equal(t, types.KindTypingStart, start.Kind)
	assert.Equal(t, "partial", start.Content)

	require.NoError(t, p.PublishTypingIndicator(ctx, "coder", false, ectx, id, nil))
	stop := s.last(t)
	assert.Equal(t, types.KindTypingStop, stop.Kind)
	assert.Empty(t, stop.Content)
	assert.True(t, agent.VerifyEvent(stop))
}

func TestPublish_Errors(t *testing.T) {
	p, s, id := newPublisher(t)
	ctx := context.Background()
	ectx := agent.EventContext{ConversationKey: "root-1"}

	s.err = errors.New("relay down")
	err := p.PublishResponse(ctx, &agent.Response{Content: "x"}, ectx, id, "coder")
	assert.ErrorIs(t, err, s.err)

	s.err = nil
	assert.Error(t, p.PublishResponse(ctx, nil, ectx, id, "coder"))
	assert.Error(t, p.PublishTypingIndicator(ctx, "coder", true, ectx, nil, nil))
}
