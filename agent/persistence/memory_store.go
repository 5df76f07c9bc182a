package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
)

// MemoryStore 内存实现，进程重启后数据丢失
type MemoryStore struct {
	mu       sync.RWMutex
	teams    map[string]*team.Team
	messages map[string][]types.ConversationMessage
	closed   bool
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:    make(map[string]*team.Team),
		messages: make(map[string][]types.ConversationMessage),
	}
}

func (s *MemoryStore) SaveTeam(ctx context.Context, key string, t *team.Team) error {
	if err := validateKey(key); err != nil || t == nil {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.teams[key] = t.Clone()
	return nil
}

func (s *MemoryStore) GetTeam(ctx context.Context, key string) (*team.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	t, ok := s.teams[key]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, key string, msg types.ConversationMessage) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.messages[key] = append(s.messages[key], cloneMessage(msg))
	return nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, key string) ([]types.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	msgs := s.messages[key]
	out := make([]types.ConversationMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

// Keys 返回所有存在团队的会话键（排序）
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.teams))
	for k := range s.teams {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func cloneMessage(m types.ConversationMessage) types.ConversationMessage {
	if m.Signal != nil {
		sig := *m.Signal
		m.Signal = &sig
	}
	return m
}

var _ ConversationStore = (*MemoryStore)(nil)
