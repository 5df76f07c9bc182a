package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/tenex/internal/database"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
)

// Common errors
var (
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType 存储后端类型
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
)

// Store 所有存储的基础接口
type Store interface {
	Close() error
	Ping(ctx context.Context) error
}

// ConversationStore 会话存储。
// GetTeam 在会话不存在时返回 (nil, nil)；GetMessages 在会话不存在时返回空切片。
type ConversationStore interface {
	Store

	SaveTeam(ctx context.Context, key string, t *team.Team) error
	GetTeam(ctx context.Context, key string) (*team.Team, error)

	AppendMessage(ctx context.Context, key string, msg types.ConversationMessage) error
	GetMessages(ctx context.Context, key string) ([]types.ConversationMessage, error)
}

// StoreConfig 存储配置
type StoreConfig struct {
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir 文件存储根目录
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	Redis RedisStoreConfig `json:"redis" yaml:"redis"`
	SQL   database.Config  `json:"sql" yaml:"sql"`

	// MaxMessages 每个会话最多保留的消息数，0 表示不限制。
	// 只作用于 redis 后端的列表裁剪。
	MaxMessages int `json:"max_messages" yaml:"max_messages"`
}

// RedisStoreConfig Redis 配置
type RedisStoreConfig struct {
	Addr      string        `json:"addr" yaml:"addr"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	PoolSize  int           `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"` // 会话键过期时间，0 表示永不过期
	TLS       bool          `json:"tls" yaml:"tls"`
}

// DefaultStoreConfig 返回默认配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/conversations",
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "tenex:",
		},
		SQL: database.Config{
			Driver: "sqlite",
			Name:   "./data/tenex.db",
			Pool:   database.DefaultPoolConfig(),
		},
	}
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidInput
	}
	return nil
}
