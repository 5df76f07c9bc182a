package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/tenex/internal/database"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// teamRecord 团队表，团队整体以 JSON 存储
type teamRecord struct {
	ConversationKey string `gorm:"primaryKey;size:191"`
	TeamID          string `gorm:"size:64;not null"`
	Lead            string `gorm:"size:191;not null"`
	Data            string `gorm:"type:text;not null"`
	CreatedAt       time.Time
}

func (teamRecord) TableName() string { return "conversation_teams" }

// messageRecord 消息表，Seq 自增保证追加顺序
type messageRecord struct {
	Seq             uint64 `gorm:"primaryKey;autoIncrement"`
	ConversationKey string `gorm:"size:191;index;not null"`
	MessageID       string `gorm:"size:191"`
	AgentName       string `gorm:"size:191"`
	Content         string `gorm:"type:text"`
	SignalType      string `gorm:"size:32"`
	SignalReason    string `gorm:"type:text"`
	Timestamp       time.Time
}

func (messageRecord) TableName() string { return "conversation_messages" }

// SQLStore GORM 实现
type SQLStore struct {
	pool *database.PoolManager
}

// NewSQLStore 打开数据库并建表
func NewSQLStore(cfg database.Config, logger *zap.Logger) (*SQLStore, error) {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	pool := cfg.Pool
	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		// SQLite 单写者
		pool.MaxOpenConns = 1
	}
	return NewSQLStoreWithDB(db, pool, logger)
}

// NewSQLStoreWithDB 使用已有连接创建存储，并执行 AutoMigrate
func NewSQLStoreWithDB(db *gorm.DB, pool database.PoolConfig, logger *zap.Logger) (*SQLStore, error) {
	pm, err := database.NewPoolManager(db, pool, logger)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&teamRecord{}, &messageRecord{}); err != nil {
		_ = pm.Close()
		return nil, fmt.Errorf("failed to migrate conversation tables: %w", err)
	}
	return &SQLStore{pool: pm}, nil
}

func (s *SQLStore) SaveTeam(ctx context.Context, key string, t *team.Team) error {
	if err := validateKey(key); err != nil || t == nil {
		return ErrInvalidInput
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal team: %w", err)
	}
	rec := teamRecord{
		ConversationKey: key,
		TeamID:          t.ID,
		Lead:            t.Lead,
		Data:            string(data),
		CreatedAt:       t.CreatedAt,
	}
	return s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"team_id", "lead", "data"}),
		}).Create(&rec).Error
	})
}

func (s *SQLStore) GetTeam(ctx context.Context, key string) (*team.Team, error) {
	var rec teamRecord
	err := s.pool.DB().WithContext(ctx).Where("conversation_key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t team.Team
	if err := json.Unmarshal([]byte(rec.Data), &t); err != nil {
		return nil, fmt.Errorf("failed to decode team: %w", err)
	}
	return &t, nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, key string, msg types.ConversationMessage) error {
	if err := validateKey(key); err != nil {
		return err
	}
	rec := messageRecord{
		ConversationKey: key,
		MessageID:       msg.ID,
		AgentName:       msg.AgentName,
		Content:         msg.Content,
		Timestamp:       msg.Timestamp.UTC(),
	}
	if msg.Signal != nil {
		rec.SignalType = string(msg.Signal.Type)
		rec.SignalReason = msg.Signal.Reason
	}
	return s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
}

func (s *SQLStore) GetMessages(ctx context.Context, key string) ([]types.ConversationMessage, error) {
	var recs []messageRecord
	if err := s.pool.DB().WithContext(ctx).
		Where("conversation_key = ?", key).
		Order("seq ASC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	msgs := make([]types.ConversationMessage, 0, len(recs))
	for _, r := range recs {
		m := types.ConversationMessage{
			ID:        r.MessageID,
			AgentName: r.AgentName,
			Content:   r.Content,
			Timestamp: r.Timestamp,
		}
		if r.SignalType != "" {
			m.Signal = &types.ConversationSignal{Type: types.SignalType(r.SignalType), Reason: r.SignalReason}
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *SQLStore) Close() error { return s.pool.Close() }

func (s *SQLStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

var _ ConversationStore = (*SQLStore)(nil)
