package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/tenex/coordinator"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
)

// Session 一个会话的运行时状态
type Session struct {
	Key         string
	Team        *team.Team
	Coordinator *coordinator.Coordinator
	RootEvent   *types.Event
	Source      string // mention / orchestrator / restored
	CreatedAt   time.Time
}

// SessionStore 会话缓存。GetOrCreate 对同一个键只执行一次创建。
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
}

// NewSessionStore 创建会话缓存
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Get 返回已缓存的会话
func (s *SessionStore) Get(key string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// GetOrCreate 返回缓存的会话，不存在时调用 create。
// 并发调用者共享同一次 create 的结果；create 返回 nil 会话时不缓存。
// create 收到的 ctx 不随首个调用者取消，等待中的调用者不会因此失败。
func (s *SessionStore) GetOrCreate(ctx context.Context, key string, create func(context.Context) (*Session, error)) (*Session, bool, error) {
	if sess, ok := s.Get(key); ok {
		return sess, false, nil
	}

	created := false
	v, err, _ := s.group.Do(key, func() (any, error) {
		if sess, ok := s.Get(key); ok {
			return sess, nil
		}
		sess, err := create(context.WithoutCancel(ctx))
		if err != nil || sess == nil {
			return sess, err
		}
		s.mu.Lock()
		s.sessions[key] = sess
		s.mu.Unlock()
		created = true
		return sess, nil
	})
	if err != nil {
		return nil, false, err
	}
	sess, _ := v.(*Session)
	return sess, created, nil
}

// Delete 移除会话，返回是否存在
func (s *SessionStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return false
	}
	delete(s.sessions, key)
	return true
}

// Len 返回会话数
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Keys 返回排序后的会话键
func (s *SessionStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// SessionInfo 会话摘要，供运维端点展示
type SessionInfo struct {
	Key       string    `json:"key"`
	TeamID    string    `json:"team_id"`
	Lead      string    `json:"lead"`
	Members   []string  `json:"members"`
	Stage     int       `json:"stage"`
	Stages    int       `json:"stages"`
	Complete  bool      `json:"complete"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Info 返回会话摘要
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		Key:       s.Key,
		Source:    s.Source,
		CreatedAt: s.CreatedAt,
	}
	if s.Team != nil {
		info.TeamID = s.Team.ID
		info.Lead = s.Team.Lead
		info.Members = append([]string(nil), s.Team.Members...)
		info.Stages = len(s.Team.Plan.Stages)
	}
	if s.Coordinator != nil {
		info.Stage = s.Coordinator.StageIndex()
		info.Complete = s.Coordinator.IsComplete()
	}
	return info
}
