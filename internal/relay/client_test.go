package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tenex/types"
)

// ---------------------------------------------------------------------------
// 测试用中继
// ---------------------------------------------------------------------------

type fakeRelay struct {
	srv *httptest.Server

	mu      sync.Mutex
	events  []*types.Event
	conns   map[*websocket.Conn]map[string][]Filter
	silent  bool // 不回复 OK
	reqs    int
	dupSend bool // 每个事件推送两次
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	f := &fakeRelay{conns: make(map[*websocket.Conn]map[string][]Filter)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeRelay) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns[conn] = make(map[string][]Filter)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.conns, conn)
		f.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if json.Unmarshal(data, &frame) != nil || len(frame) < 2 {
			continue
		}
		var label string
		_ = json.Unmarshal(frame[0], &label)

		switch label {
		case "REQ":
			var subID string
			_ = json.Unmarshal(frame[1], &subID)
			filters := make([]Filter, 0, len(frame)-2)
			for _, raw := range frame[2:] {
				var flt Filter
				if json.Unmarshal(raw, &flt) == nil {
					filters = append(filters, flt)
				}
			}
			f.mu.Lock()
			f.reqs++
			f.conns[conn][subID] = filters
			stored := append([]*types.Event(nil), f.events...)
			f.mu.Unlock()
			for _, ev := range stored {
				if matchesAny(filters, ev) {
					writeFrame(ctx, conn, "EVENT", subID, ev)
				}
			}
			writeFrame(ctx, conn, "EOSE", subID)

		case "CLOSE":
			var subID string
			_ = json.Unmarshal(frame[1], &subID)
			f.mu.Lock()
			delete(f.conns[conn], subID)
			f.mu.Unlock()

		case "EVENT":
			var ev types.Event
			if json.Unmarshal(frame[1], &ev) != nil {
				continue
			}
			f.mu.Lock()
			silent := f.silent
			f.mu.Unlock()
			if ev.Content == "reject" {
				writeFrame(ctx, conn, "OK", ev.ID, false, "blocked: test")
				continue
			}
			f.mu.Lock()
			f.events = append(f.events, &ev)
			f.mu.Unlock()
			if !silent {
				writeFrame(ctx, conn, "OK", ev.ID, true, "")
			}
			f.broadcast(ctx, &ev)
		}
	}
}

func (f *fakeRelay) broadcast(ctx context.Context, ev *types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn, subs := range f.conns {
		for subID, filters := range subs {
			if matchesAny(filters, ev) {
				writeFrame(ctx, conn, "EVENT", subID, ev)
				if f.dupSend {
					writeFrame(ctx, conn, "EVENT", subID, ev)
				}
			}
		}
	}
}

// kick 断开所有客户端连接
func (f *fakeRelay) kick() {
	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()
	for _, c := range conns {
		_ = c.CloseNow()
	}
}

func (f *fakeRelay) setSilent(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = v
}

func (f *fakeRelay) setDupSend(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dupSend = v
}

func (f *fakeRelay) reqCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs
}

func matchesAny(filters []Filter, ev *types.Event) bool {
	if len(filters) == 0 {
		return true
	}
	for _, flt := range filters {
		if flt.Matches(ev) {
			return true
		}
	}
	return false
}

func writeFrame(ctx context.Context, conn *websocket.Conn, parts ...any) {
	data, _ := json.Marshal(parts)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

// ---------------------------------------------------------------------------
// 辅助函数
// ---------------------------------------------------------------------------

func connect(t *testing.T, f *fakeRelay, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = f.url()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.PublishTimeout = time.Second
	for _, m := range mutate {
		m(&cfg)
	}
	c := New(cfg, zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func note(id, pubkey, content string) *types.Event {
	return &types.Event{ID: id, PubKey: pubkey, CreatedAt: 1700000000, Kind: types.KindTextNote, Content: content}
}

func receive(t *testing.T, ch <-chan *types.Event) *types.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, ch <-chan *types.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// ---------------------------------------------------------------------------
// 测试
// ---------------------------------------------------------------------------

func TestClient_PublishAck(t *testing.T) {
	f := newFakeRelay(t)
	c := connect(t, f)
	ctx := context.Background()

	require.NoError(t, c.Publish(ctx, note("ev-1", "alice", "hello")))

	err := c.Publish(ctx, note("ev-2", "alice", "reject"))
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "ev-2", rejected.EventID)
	assert.Equal(t, "blocked: test", rejected.Reason)

	assert.Error(t, c.Publish(ctx, &types.Event{}))
}

func TestClient_PublishAckTimeout(t *testing.T) {
	f := newFakeRelay(t)
	f.setSilent(true)
	c := connect(t, f, func(cfg *Config) { cfg.PublishTimeout = 50 * time.Millisecond })

	err := c.Publish(context.Background(), note("ev-1", "alice", "hello"))
	assert.ErrorIs(t, err, ErrAckTimeout)
}

func TestClient_SubscribeStoredAndLive(t *testing.T) {
	f := newFakeRelay(t)
	writer := connect(t, f)
	ctx := context.Background()
	require.NoError(t, writer.Publish(ctx, note("old-1", "alice", "before")))

	reader := connect(t, f)
	ch, err := reader.Subscribe(ctx, "inbox", Filter{Kinds: []int{types.KindTextNote}})
	require.NoError(t, err)

	assert.Equal(t, "old-1", receive(t, ch).ID)

	typing := note("typing-1", "alice", "")
	typing.Kind = types.KindTypingStart
	require.NoError(t, writer.Publish(ctx, typing))
	require.NoError(t, writer.Publish(ctx, note("new-1", "alice", "after")))

	assert.Equal(t, "new-1", receive(t, ch).ID, "typing events are filtered out")
}

func TestClient_TagFilter(t *testing.T) {
	f := newFakeRelay(t)
	c := connect(t, f)
	ctx := context.Background()

	ch, err := c.Subscribe(ctx, "mentions", Filter{Tags: map[string][]string{"p": {"bob"}}})
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, note("ev-1", "alice", "not for bob")))
	mention := note("ev-2", "alice", "hey bob")
	mention.Tags = []types.Tag{{"p", "bob"}}
	require.NoError(t, c.Publish(ctx, mention))

	assert.Equal(t, "ev-2", receive(t, ch).ID)
}

func TestClient_Unsubscribe(t *testing.T) {
	f := newFakeRelay(t)
	c := connect(t, f)
	ctx := context.Background()

	ch, err := c.Subscribe(ctx, "inbox")
	require.NoError(t, err)
	require.NoError(t, c.Unsubscribe(ctx, "inbox"))

	_, ok := <-ch
	assert.False(t, ok)
	assert.NoError(t, c.Unsubscribe(ctx, "unknown"))
}

func TestClient_DeduplicatesEvents(t *testing.T) {
	f := newFakeRelay(t)
	f.setDupSend(true)
	c := connect(t, f)
	ctx := context.Background()

	ch, err := c.Subscribe(ctx, "inbox")
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, note("ev-1", "alice", "once")))

	assert.Equal(t, "ev-1", receive(t, ch).ID)
	assertNoEvent(t, ch)
}

func TestClient_VerifyDropsEvents(t *testing.T) {
	f := newFakeRelay(t)
	c := connect(t, f, func(cfg *Config) {
		cfg.Verify = func(ev *types.Event) bool { return ev.PubKey != "mallory" }
	})
	ctx := context.Background()

	ch, err := c.Subscribe(ctx, "inbox")
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, note("ev-1", "mallory", "forged")))
	require.NoError(t, c.Publish(ctx, note("ev-2", "alice", "genuine")))

	assert.Equal(t, "ev-2", receive(t, ch).ID)
}

func TestClient_ReconnectResubscribes(t *testing.T) {
	f := newFakeRelay(t)
	reader := connect(t, f)
	ctx := context.Background()

	ch, err := reader.Subscribe(ctx, "inbox", Filter{Authors: []string{"alice"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.reqCount() == 1 }, time.Second, 10*time.Millisecond)

	f.kick()
	require.Eventually(t, func() bool { return f.reqCount() == 2 }, 2*time.Second, 10*time.Millisecond,
		"subscription should be re-sent after reconnect")

	writer := connect(t, f)
	require.NoError(t, writer.Publish(ctx, note("ev-1", "alice", "after reconnect")))
	assert.Equal(t, "ev-1", receive(t, ch).ID)
}

func TestClient_Closed(t *testing.T) {
	f := newFakeRelay(t)
	c := connect(t, f)
	ctx := context.Background()

	ch, err := c.Subscribe(ctx, "inbox")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.ErrorIs(t, c.Publish(ctx, note("ev-1", "alice", "late")), ErrClosed)
	_, err = c.Subscribe(ctx, "again")
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, c.Connected())
}

func TestClient_NotConnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"}, nil)
	defer c.Close()
	assert.ErrorIs(t, c.Publish(context.Background(), note("ev-1", "alice", "x")), ErrNotConnected)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotConnected)
}

func TestFilter_JSON(t *testing.T) {
	f := Filter{
		Authors: []string{"alice"},
		Kinds:   []int{1},
		Tags:    map[string][]string{"e": {"root"}},
		Since:   100,
		Limit:   10,
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"authors":["alice"],"kinds":[1],"#e":["root"],"since":100,"limit":10}`, string(data))

	var back Filter
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, f, back)
}

func TestFilter_Matches(t *testing.T) {
	ev := note("ev-1", "alice", "x")
	ev.Tags = []types.Tag{{"e", "root-1"}, {"p", "bob"}}

	assert.True(t, Filter{}.Matches(ev))
	assert.True(t, Filter{IDs: []string{"ev-1"}, Kinds: []int{1}}.Matches(ev))
	assert.False(t, Filter{Authors: []string{"bob"}}.Matches(ev))
	assert.True(t, Filter{Tags: map[string][]string{"p": {"carol", "bob"}}}.Matches(ev))
	assert.False(t, Filter{Tags: map[string][]string{"e": {"root-2"}}}.Matches(ev))
	assert.False(t, Filter{Since: 1800000000}.Matches(ev))
	assert.False(t, Filter{}.Matches(nil))
}

func TestSeenSet_Evicts(t *testing.T) {
	s := newSeenSet(2)
	assert.True(t, s.add("a"))
	assert.False(t, s.add("a"))
	assert.True(t, s.add("b"))
	assert.True(t, s.add("c"))
	assert.True(t, s.add("a"), "oldest key is evicted")
}
