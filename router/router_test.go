package router_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/internal/cache"
	"github.com/BaSui01/tenex/llm/factory"
	"github.com/BaSui01/tenex/orchestrator"
	"github.com/BaSui01/tenex/router"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/testutil/fixtures"
	"github.com/BaSui01/tenex/testutil/mocks"
	"github.com/BaSui01/tenex/types"
)

type rig struct {
	store     *mocks.MockStore
	publisher *mocks.RecordingPublisher
	agentLLM  *mocks.MockProvider
	formLLM   *mocks.MockProvider
	agents    *router.AgentFactory
	router    *router.Router
}

var project = agent.ProjectContext{Name: "tenex", Description: "multi-agent conversations"}

func newRig(t *testing.T, catalog ...agent.Config) *rig {
	t.Helper()
	if len(catalog) == 0 {
		catalog = fixtures.Catalog()
	}
	logger := zaptest.NewLogger(t)
	r := &rig{
		store:     mocks.NewMockStore(),
		publisher: mocks.NewRecordingPublisher(),
		agentLLM:  mocks.NewMockProvider().WithResponse("on it"),
		formLLM:   mocks.NewMockProvider(),
	}

	var err error
	r.agents, err = router.NewAgentFactory(router.FactoryConfig{
		Catalog:         catalog,
		DefaultProvider: r.agentLLM,
		Publisher:       r.publisher,
		Store:           r.store,
		Logger:          logger,
	})
	require.NoError(t, err)

	r.router, err = router.New(router.Deps{
		Store:  r.store,
		Agents: r.agents,
		Former: orchestrator.New(r.formLLM, orchestrator.WithLogger(logger)),
	}, router.WithLogger(logger), router.WithProject(project))
	require.NoError(t, err)
	return r
}

func (r *rig) pubKey(t *testing.T, name string) string {
	t.Helper()
	for _, info := range r.agents.Infos() {
		if info.Name == name {
			return info.PublicKey
		}
	}
	t.Fatalf("unknown agent %q", name)
	return ""
}

func TestNew_Validation(t *testing.T) {
	_, err := router.New(router.Deps{})
	assert.True(t, types.IsCode(err, types.ErrConfiguration))

	_, err = router.New(router.Deps{Store: mocks.NewMockStore()})
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestNewAgentFactory_Validation(t *testing.T) {
	base := router.FactoryConfig{Publisher: mocks.NewRecordingPublisher(), Store: mocks.NewMockStore()}

	tests := []struct {
		name    string
		catalog []agent.Config
	}{
		{"duplicate name", []agent.Config{fixtures.AgentConfig("coder", "a"), fixtures.AgentConfig("coder", "b")}},
		{"shared secret", []agent.Config{
			{Name: "a", SecretKey: "same"},
			{Name: "b", SecretKey: "same"},
		}},
		{"empty secret", []agent.Config{{Name: "a"}}},
		{"empty name", []agent.Config{{SecretKey: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Catalog = tt.catalog
			_, err := router.NewAgentFactory(cfg)
			assert.True(t, types.IsCode(err, types.ErrConfiguration), "got %v", err)
		})
	}

	_, err := router.NewAgentFactory(router.FactoryConfig{Store: mocks.NewMockStore()})
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestHandleEvent_MentionFastPath(t *testing.T) {
	r := newRig(t)
	ev := fixtures.Mention(fixtures.UserEvent("root-1", "quick fix please"),
		"unknown-pubkey", r.pubKey(t, "reviewer"), r.pubKey(t, "coder"))

	require.NoError(t, r.router.HandleEvent(context.Background(), ev))

	assert.Zero(t, r.formLLM.CallCount(), "mention must not call the orchestrator")

	tm, err := r.store.GetTeam(context.Background(), "root-1")
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, "reviewer", tm.Lead)
	assert.Equal(t, []string{"reviewer"}, tm.Members)
	assert.Equal(t, 1, tm.StageCount())

	sess, ok := r.router.Session("root-1")
	require.True(t, ok)
	assert.Equal(t, router.SourceMention, sess.Source)
	assert.Same(t, ev, sess.RootEvent)

	published := r.publisher.ResponsesBy("reviewer")
	require.Len(t, published, 1)
	assert.Equal(t, "on it", published[0].Response.Content)
	assert.Equal(t, "root-1", published[0].Context.ConversationKey)
	assert.Len(t, published[0].Context.AvailableAgents, 4)
	assert.Equal(t, "tenex", published[0].Context.Project.Name)
}

func TestHandleEvent_OrchestratorFormation(t *testing.T) {
	r := newRig(t)
	r.formLLM.WithResponse(fixtures.TeamFormationJSON("planner", []string{"planner", "coder"}, []string{"coder"}))

	require.NoError(t, r.router.HandleEvent(context.Background(), fixtures.UserEvent("root-1", "build a cache")))

	assert.Equal(t, 1, r.formLLM.CallCount())
	assert.Equal(t, 1, r.store.SaveTeamCalls())

	tm, err := r.store.GetTeam(context.Background(), "root-1")
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, "planner", tm.Lead)
	assert.Equal(t, "root-1", tm.RootEventID)

	assert.Len(t, r.publisher.ResponsesBy("coder"), 1)
	assert.Empty(t, r.publisher.ResponsesBy("planner"))
	assert.Equal(t, 1, r.router.Sessions())
}

func TestHandleEvent_ReusesSession(t *testing.T) {
	r := newRig(t)
	r.formLLM.WithResponse(fixtures.TeamFormationJSON("coder", []string{"coder"}, []string{"coder"}))
	ctx := context.Background()

	require.NoError(t, r.router.HandleEvent(ctx, fixtures.UserEvent("root-1", "hello")))
	require.NoError(t, r.router.HandleEvent(ctx, fixtures.ReplyEvent("ev-2", "root-1", "user-pubkey", "and another thing")))

	assert.Equal(t, 1, r.formLLM.CallCount())
	assert.Equal(t, 1, r.store.SaveTeamCalls())
	assert.Equal(t, 1, r.router.Sessions())
	assert.Len(t, r.publisher.ResponsesBy("coder"), 2)
}

func TestHandleEvent_FormationErrorPropagates(t *testing.T) {
	r := newRig(t)
	r.formLLM.WithResponses("I would pick the coder.", "Still no JSON, sorry.")

	err := r.router.HandleEvent(context.Background(), fixtures.UserEvent("root-1", "hello"))
	require.Error(t, err)

	var tfe *orchestrator.TeamFormationError
	require.True(t, errors.As(err, &tfe))
	assert.Equal(t, "Still no JSON, sorry.", tfe.Raw)
	assert.True(t, types.IsCode(err, types.ErrTeamFormation))

	assert.Zero(t, r.store.SaveTeamCalls(), "no fallback team is saved")
	assert.Zero(t, r.router.Sessions())
	assert.Empty(t, r.publisher.Responses())
}

func TestHandleEvent_RestoresPersistedTeam(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	tm, err := team.New("root-1", "planner", []string{"planner", "reviewer"}, team.ConversationPlan{
		Stages: []team.Stage{{Participants: []string{"reviewer"}, Purpose: "review"}},
	})
	require.NoError(t, err)
	require.NoError(t, r.store.SaveTeam(ctx, "root-1", tm))

	require.NoError(t, r.router.HandleEvent(ctx, fixtures.ReplyEvent("ev-9", "root-1", "user-pubkey", "still there?")))

	assert.Zero(t, r.formLLM.CallCount())
	sess, ok := r.router.Session("root-1")
	require.True(t, ok)
	assert.Equal(t, router.SourceRestored, sess.Source)
	assert.Nil(t, sess.RootEvent)
	assert.Equal(t, tm.ID, sess.Team.ID)
	assert.Len(t, r.publisher.ResponsesBy("reviewer"), 1)
}

func TestHandleEvent_EvictRebuildsFromStore(t *testing.T) {
	r := newRig(t)
	r.formLLM.WithResponse(fixtures.TeamFormationJSON("coder", []string{"coder"}, []string{"coder"}))
	ctx := context.Background()

	require.NoError(t, r.router.HandleEvent(ctx, fixtures.UserEvent("root-1", "hello")))
	assert.True(t, r.router.Evict("root-1"))
	assert.False(t, r.router.Evict("root-1"))
	assert.Zero(t, r.router.Sessions())

	require.NoError(t, r.router.HandleEvent(ctx, fixtures.ReplyEvent("ev-2", "root-1", "user-pubkey", "back again")))
	assert.Equal(t, 1, r.formLLM.CallCount())
	sess, ok := r.router.Session("root-1")
	require.True(t, ok)
	assert.Equal(t, router.SourceRestored, sess.Source)
}

func TestHandleEvent_IgnoresAgentAuthoredWithoutTeam(t *testing.T) {
	r := newRig(t)
	ev := fixtures.UserEvent("root-1", "agent chatter")
	ev.PubKey = r.pubKey(t, "coder")

	require.NoError(t, r.router.HandleEvent(context.Background(), ev))
	assert.Zero(t, r.formLLM.CallCount())
	assert.Zero(t, r.router.Sessions())
	assert.Empty(t, r.publisher.Responses())
}

func TestHandleEvent_IgnoresOtherKinds(t *testing.T) {
	r := newRig(t)
	ev := fixtures.UserEvent("root-1", "")
	ev.Kind = types.KindTypingStart

	require.NoError(t, r.router.HandleEvent(context.Background(), ev))
	assert.Zero(t, r.store.GetTeamCalls())

	assert.True(t, types.IsCode(r.router.HandleEvent(context.Background(), nil), types.ErrInvalidRequest))
}

func TestHandleEvent_MissingLeadConfig(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	require.NoError(t, r.store.SaveTeam(ctx, "root-1", team.SingleAgent("root-1", "ghost", "")))

	err := r.router.HandleEvent(ctx, fixtures.ReplyEvent("ev-2", "root-1", "user-pubkey", "hi"))
	assert.True(t, types.IsCode(err, types.ErrConfiguration), "got %v", err)
	assert.Zero(t, r.router.Sessions())
}

func TestHandleEvent_MissingMemberConfigIsSkipped(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	tm, err := team.New("root-1", "planner", []string{"planner", "ghost"}, team.ConversationPlan{
		Stages: []team.Stage{{Participants: []string{"ghost"}, Purpose: "haunt"}},
	})
	require.NoError(t, err)
	require.NoError(t, r.store.SaveTeam(ctx, "root-1", tm))

	require.NoError(t, r.router.HandleEvent(ctx, fixtures.ReplyEvent("ev-2", "root-1", "user-pubkey", "hi")))

	sess, ok := r.router.Session("root-1")
	require.True(t, ok)
	_, found := sess.Coordinator.Member("ghost")
	assert.False(t, found)
	// 缺失的成员由负责人代答
	assert.Len(t, r.publisher.ResponsesBy("planner"), 1)
}

func TestHandleEvent_ConcurrentEventsFormOneTeam(t *testing.T) {
	r := newRig(t)
	r.formLLM.
		WithResponse(fixtures.TeamFormationJSON("coder", []string{"coder"}, []string{"coder"})).
		WithDelay(30 * time.Millisecond)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.router.HandleEvent(context.Background(), fixtures.UserEvent("root-1", "hello"))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, r.formLLM.CallCount())
	assert.Equal(t, 1, r.store.SaveTeamCalls())
	assert.Equal(t, 1, r.router.Sessions())
}

func TestAgentFactory_PerAgentProviderOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/v1/chat/completions", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"r1","model":"local-model","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"from the override"}}]}`))
	}))
	defer server.Close()

	coder := fixtures.AgentConfig("coder", "software engineer")
	coder.LLM = &factory.ProviderConfig{Provider: "ollama", BaseURL: server.URL, Model: "local-model"}
	r := newRig(t, coder, fixtures.AgentConfig("reviewer", "code reviewer"))

	ev := fixtures.Mention(fixtures.UserEvent("root-1", "hi"), r.pubKey(t, "coder"))
	require.NoError(t, r.router.HandleEvent(context.Background(), ev))

	published := r.publisher.ResponsesBy("coder")
	require.Len(t, published, 1)
	assert.Equal(t, "from the override", published[0].Response.Content)
	assert.Equal(t, "local-model", published[0].Response.Metadata.Model)
	assert.Zero(t, r.agentLLM.CallCount(), "default provider is not used for overridden agents")
}

func TestAgentFactory_BadOverrideIsConfigurationError(t *testing.T) {
	bad := fixtures.AgentConfig("coder", "software engineer")
	bad.LLM = &factory.ProviderConfig{Provider: "mystery"}
	r := newRig(t, bad)

	_, err := r.agents.Build("coder")
	assert.True(t, types.IsCode(err, types.ErrConfiguration))

	_, err = r.agents.Build("nobody")
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestRouter_Snapshot(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	assert.Empty(t, r.router.Snapshot())

	r.formLLM.WithResponse(fixtures.TeamFormationJSON("planner", []string{"planner", "coder"}, []string{"coder"}, []string{"planner"}))
	require.NoError(t, r.router.HandleEvent(ctx, fixtures.UserEvent("root-b", "build a cache")))
	require.NoError(t, r.router.HandleEvent(ctx, fixtures.Mention(fixtures.UserEvent("root-a", "review"), r.pubKey(t, "reviewer"))))

	snap := r.router.Snapshot()
	require.Len(t, snap, 2)

	assert.Equal(t, "root-a", snap[0].Key)
	assert.Equal(t, "reviewer", snap[0].Lead)
	assert.Equal(t, router.SourceMention, snap[0].Source)
	assert.Equal(t, 1, snap[0].Stages)

	assert.Equal(t, "root-b", snap[1].Key)
	assert.Equal(t, "planner", snap[1].Lead)
	assert.Equal(t, []string{"planner", "coder"}, snap[1].Members)
	assert.Equal(t, 2, snap[1].Stages)
	assert.Equal(t, 0, snap[1].Stage)
	assert.Equal(t, router.SourceOrchestrator, snap[1].Source)
	assert.NotEmpty(t, snap[1].TeamID)
}

func TestHandleEvent_LedgerSkipsReplayedEvents(t *testing.T) {
	r := newRig(t)
	mr := miniredis.RunT(t)
	ledger := cache.NewManagerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cache.Config{TTL: time.Hour}, nil)
	t.Cleanup(func() { _ = ledger.Close() })

	newRouter := func() *router.Router {
		rt, err := router.New(router.Deps{
			Store:  r.store,
			Agents: r.agents,
			Former: orchestrator.New(r.formLLM),
		}, router.WithClaimer(ledger))
		require.NoError(t, err)
		return rt
	}

	ctx := context.Background()
	ev := fixtures.Mention(fixtures.UserEvent("root-1", "review this"), r.pubKey(t, "reviewer"))
	require.NoError(t, newRouter().HandleEvent(ctx, ev))
	require.Len(t, r.publisher.ResponsesBy("reviewer"), 1)

	// 模拟重启：新的 Router 收到回放的同一事件
	require.NoError(t, newRouter().HandleEvent(ctx, ev))
	assert.Len(t, r.publisher.ResponsesBy("reviewer"), 1)
}

func TestHandleEvent_LedgerReleasesFailedEvents(t *testing.T) {
	r := newRig(t)
	mr := miniredis.RunT(t)
	ledger := cache.NewManagerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cache.Config{}, nil)
	t.Cleanup(func() { _ = ledger.Close() })

	rt, err := router.New(router.Deps{
		Store:  r.store,
		Agents: r.agents,
		Former: orchestrator.New(r.formLLM),
	}, router.WithClaimer(ledger))
	require.NoError(t, err)

	ctx := context.Background()
	ev := fixtures.UserEvent("root-1", "hello")
	r.formLLM.WithResponses("no json", "still no json")
	require.Error(t, rt.HandleEvent(ctx, ev))

	seen, err := ledger.Seen(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, seen, "failed events are released for retry")

	assert.Equal(t, "root-1", r.formLLM.LastRequest().Metadata["conversation_key"])
}
