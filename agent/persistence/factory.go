package persistence

import (
	"fmt"

	"go.uber.org/zap"
)

// NewConversationStore 按配置创建会话存储
func NewConversationStore(cfg StoreConfig, logger *zap.Logger) (ConversationStore, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(cfg.BaseDir)
	case StoreTypeRedis:
		return NewRedisStore(cfg)
	case StoreTypeSQL:
		return NewSQLStore(cfg.SQL, logger)
	default:
		return nil, fmt.Errorf("unsupported conversation store type: %s", cfg.Type)
	}
}
