package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/tenex/internal/tlsutil"
	"github.com/BaSui01/tenex/types"
)

var (
	ErrClosed       = errors.New("relay: client is closed")
	ErrNotConnected = errors.New("relay: not connected")
	ErrAckTimeout   = errors.New("relay: timed out waiting for OK")
)

// RejectedError 中继以 OK false 拒绝了事件
type RejectedError struct {
	EventID string
	Reason  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("relay rejected event %s: %s", e.EventID, e.Reason)
}

// Config 客户端配置
type Config struct {
	URL            string        `yaml:"url" json:"url"`
	PublishTimeout time.Duration `yaml:"publish_timeout" json:"publish_timeout"` // 等待 OK 的时间
	Reconnect      bool          `yaml:"reconnect" json:"reconnect"`
	MaxReconnects  int           `yaml:"max_reconnects" json:"max_reconnects"` // 0 表示不限次数
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
	BufferSize     int           `yaml:"buffer_size" json:"buffer_size"` // 每个订阅的事件缓冲
	PublishRate    float64       `yaml:"publish_rate" json:"publish_rate"` // 每秒发布上限，0 表示不限制
	PublishBurst   int           `yaml:"publish_burst" json:"publish_burst"`

	// Verify 校验入站事件，返回 false 的事件被丢弃
	Verify func(*types.Event) bool `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PublishTimeout: 10 * time.Second,
		Reconnect:      true,
		ReconnectDelay: time.Second,
		MaxBackoff:     30 * time.Second,
		BufferSize:     256,
	}
}

type okResult struct {
	accepted bool
	message  string
}

type subscription struct {
	id      string
	filters []Filter
	ch      chan *types.Event
	stop    chan struct{}
	sendMu  sync.Mutex
	once    sync.Once
}

func (s *subscription) shutdown() {
	s.once.Do(func() {
		close(s.stop)
		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()
	})
}

// Client 中继客户端。所有方法可并发调用。
type Client struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]*subscription
	pending map[string]chan okResult
	closed  bool

	seen *seenSet

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建客户端，需调用 Connect 建立连接
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "relay_client"), zap.String("url", cfg.URL)),
		subs:    make(map[string]*subscription),
		pending: make(map[string]chan okResult),
		seen:    newSeenSet(4096),
		runCtx:  ctx,
		cancel:  cancel,
	}
	if cfg.PublishRate > 0 {
		burst := cfg.PublishBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.PublishRate), burst)
	}
	return c
}

// Connect 建立连接并启动读循环
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()
	c.logger.Info("connected to relay")
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	var opts *websocket.DialOptions
	if strings.HasPrefix(c.cfg.URL, "wss://") {
		opts = &websocket.DialOptions{HTTPClient: tlsutil.WebSocketClient()}
	}
	conn, _, err := websocket.Dial(ctx, c.cfg.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("relay dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// Connected 是否已连接
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// Ping 检查连接是否存活
func (c *Client) Ping(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Ping(ctx)
}

// Publish 发送事件并等待中继的 OK 确认
func (c *Client) Publish(ctx context.Context, ev *types.Event) error {
	if ev == nil || ev.ID == "" {
		return errors.New("relay: event must have an id")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	data, err := json.Marshal([]any{"EVENT", ev})
	if err != nil {
		return fmt.Errorf("relay: encode event: %w", err)
	}

	ack := make(chan okResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	c.pending[ev.ID] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ev.ID)
		c.mu.Unlock()
	}()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("relay: write event: %w", err)
	}

	timer := time.NewTimer(c.cfg.PublishTimeout)
	defer timer.Stop()
	select {
	case res := <-ack:
		if !res.accepted {
			return &RejectedError{EventID: ev.ID, Reason: res.message}
		}
		return nil
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe 注册订阅并发送 REQ。返回的通道在 Unsubscribe、中继 CLOSED 或 Close 后关闭。
func (c *Client) Subscribe(ctx context.Context, id string, filters ...Filter) (<-chan *types.Event, error) {
	if id == "" {
		return nil, errors.New("relay: subscription id is required")
	}
	sub := &subscription{
		id:      id,
		filters: filters,
		ch:      make(chan *types.Event, c.cfg.BufferSize),
		stop:    make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if old, ok := c.subs[id]; ok {
		old.shutdown()
	}
	c.subs[id] = sub
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := c.sendReq(ctx, conn, sub); err != nil {
			return nil, err
		}
	}
	return sub.ch, nil
}

// Unsubscribe 发送 CLOSE 并关闭订阅通道
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	conn := c.conn
	c.mu.Unlock()
	if !ok {
		return nil
	}
	sub.shutdown()

	if conn == nil {
		return nil
	}
	data, _ := json.Marshal([]any{"CLOSE", id})
	return conn.Write(ctx, websocket.MessageText, data)
}

// Close 关闭连接与所有订阅
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()

	c.cancel()
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "closing")
	}
	c.wg.Wait()
	for _, sub := range subs {
		sub.shutdown()
	}
	return err
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) sendReq(ctx context.Context, conn *websocket.Conn, sub *subscription) error {
	msg := make([]any, 0, len(sub.filters)+2)
	msg = append(msg, "REQ", sub.id)
	for _, f := range sub.filters {
		msg = append(msg, f)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("relay: encode REQ: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("relay: write REQ: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		conn := c.current()
		if conn == nil {
			return
		}
		_, data, err := conn.Read(c.runCtx)
		if err != nil {
			if c.isClosed() || c.runCtx.Err() != nil {
				return
			}
			c.logger.Warn("relay read failed", zap.Error(err))
			if !c.cfg.Reconnect {
				c.dropConnection(conn)
				return
			}
			if err := c.reconnect(conn); err != nil {
				c.logger.Error("relay reconnect gave up", zap.Error(err))
				return
			}
			continue
		}
		c.handleMessage(data)
	}
}

func (c *Client) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, "read failed")
}

// reconnect 指数退避重连，成功后重新发送所有订阅
func (c *Client) reconnect(old *websocket.Conn) error {
	c.dropConnection(old)

	delay := c.cfg.ReconnectDelay
	for attempt := 1; c.cfg.MaxReconnects == 0 || attempt <= c.cfg.MaxReconnects; attempt++ {
		select {
		case <-c.runCtx.Done():
			return ErrClosed
		case <-time.After(delay):
		}

		conn, err := c.dial(c.runCtx)
		if err != nil {
			c.logger.Warn("relay reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			delay *= 2
			if delay > c.cfg.MaxBackoff {
				delay = c.cfg.MaxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close(websocket.StatusNormalClosure, "closing")
			return ErrClosed
		}
		c.conn = conn
		subs := make([]*subscription, 0, len(c.subs))
		for _, s := range c.subs {
			subs = append(subs, s)
		}
		c.mu.Unlock()

		for _, s := range subs {
			if err := c.sendReq(c.runCtx, conn, s); err != nil {
				c.logger.Warn("resubscribe failed", zap.String("subscription", s.id), zap.Error(err))
			}
		}
		c.logger.Info("reconnected to relay", zap.Int("attempt", attempt), zap.Int("subscriptions", len(subs)))
		return nil
	}
	return fmt.Errorf("relay: max reconnect attempts (%d) reached", c.cfg.MaxReconnects)
}

func (c *Client) handleMessage(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) == 0 {
		c.logger.Debug("ignoring malformed relay message", zap.ByteString("data", data))
		return
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}

	switch label {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		var ev types.Event
		if json.Unmarshal(frame[1], &subID) != nil || json.Unmarshal(frame[2], &ev) != nil {
			c.logger.Debug("ignoring malformed EVENT frame")
			return
		}
		c.deliver(subID, &ev)

	case "OK":
		if len(frame) < 3 {
			return
		}
		var id string
		var accepted bool
		var message string
		_ = json.Unmarshal(frame[1], &id)
		_ = json.Unmarshal(frame[2], &accepted)
		if len(frame) > 3 {
			_ = json.Unmarshal(frame[3], &message)
		}
		c.mu.Lock()
		ack, ok := c.pending[id]
		c.mu.Unlock()
		if ok {
			select {
			case ack <- okResult{accepted: accepted, message: message}:
			default:
			}
		}

	case "EOSE":
		var subID string
		if len(frame) > 1 {
			_ = json.Unmarshal(frame[1], &subID)
		}
		c.logger.Debug("end of stored events", zap.String("subscription", subID))

	case "CLOSED":
		var subID, reason string
		if len(frame) > 1 {
			_ = json.Unmarshal(frame[1], &subID)
		}
		if len(frame) > 2 {
			_ = json.Unmarshal(frame[2], &reason)
		}
		c.logger.Warn("relay closed subscription", zap.String("subscription", subID), zap.String("reason", reason))
		c.mu.Lock()
		sub, ok := c.subs[subID]
		delete(c.subs, subID)
		c.mu.Unlock()
		if ok {
			sub.shutdown()
		}

	case "NOTICE":
		var notice string
		if len(frame) > 1 {
			_ = json.Unmarshal(frame[1], &notice)
		}
		c.logger.Warn("relay notice", zap.String("notice", notice))
	}
}

func (c *Client) deliver(subID string, ev *types.Event) {
	c.mu.Lock()
	sub, ok := c.subs[subID]
	c.mu.Unlock()
	if !ok {
		return
	}
	if c.cfg.Verify != nil && !c.cfg.Verify(ev) {
		c.logger.Warn("dropping event with invalid signature", zap.String("event_id", ev.ID))
		return
	}
	if !c.seen.add(subID + ":" + ev.ID) {
		return
	}

	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()
	select {
	case <-sub.stop:
		return
	default:
	}
	select {
	case sub.ch <- ev:
	case <-sub.stop:
	case <-c.runCtx.Done():
	}
}
