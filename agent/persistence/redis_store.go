package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/tenex/internal/tlsutil"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
	"github.com/redis/go-redis/v9"
)

// RedisStore Redis 实现：团队存为字符串，消息存为列表（RPUSH 保证追加顺序）
type RedisStore struct {
	client      *redis.Client
	keyPrefix   string
	ttl         time.Duration
	maxMessages int
}

// NewRedisStore 连接 Redis 并创建存储
func NewRedisStore(cfg StoreConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	if cfg.Redis.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg), nil
}

// NewRedisStoreWithClient 使用已有客户端创建存储
func NewRedisStoreWithClient(client *redis.Client, cfg StoreConfig) *RedisStore {
	prefix := cfg.Redis.KeyPrefix
	if prefix == "" {
		prefix = "tenex:"
	}
	return &RedisStore{
		client:      client,
		keyPrefix:   prefix + "conv:",
		ttl:         cfg.Redis.TTL,
		maxMessages: cfg.MaxMessages,
	}
}

func (s *RedisStore) teamKey(key string) string     { return s.keyPrefix + "team:" + key }
func (s *RedisStore) messagesKey(key string) string { return s.keyPrefix + "msgs:" + key }

func (s *RedisStore) SaveTeam(ctx context.Context, key string, t *team.Team) error {
	if err := validateKey(key); err != nil || t == nil {
		return ErrInvalidInput
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal team: %w", err)
	}
	return s.client.Set(ctx, s.teamKey(key), data, s.ttl).Err()
}

func (s *RedisStore) GetTeam(ctx context.Context, key string) (*team.Team, error) {
	data, err := s.client.Get(ctx, s.teamKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t team.Team
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode team: %w", err)
	}
	return &t, nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, key string, msg types.ConversationMessage) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := s.client.TxPipeline()
	listKey := s.messagesKey(key)
	pipe.RPush(ctx, listKey, data)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, listKey, int64(-s.maxMessages), -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, listKey, s.ttl)
		pipe.Expire(ctx, s.teamKey(key), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetMessages(ctx context.Context, key string) ([]types.ConversationMessage, error) {
	raw, err := s.client.LRange(ctx, s.messagesKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]types.ConversationMessage, 0, len(raw))
	for _, r := range raw {
		var m types.ConversationMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ ConversationStore = (*RedisStore)(nil)
