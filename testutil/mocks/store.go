// MockStore 在内存会话存储之上提供错误注入与调用计数。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/tenex/agent/persistence"
	"github.com/BaSui01/tenex/team"
	"github.com/BaSui01/tenex/types"
)

// MockStore 包装 persistence.MemoryStore
type MockStore struct {
	*persistence.MemoryStore

	mu sync.Mutex

	// 错误注入
	saveTeamErr error
	getTeamErr  error
	appendErr   error
	getMsgsErr  error

	// 调用记录
	saveTeamCalls int
	getTeamCalls  int
	appendCalls   int
}

// NewMockStore 创建 MockStore
func NewMockStore() *MockStore {
	return &MockStore{MemoryStore: persistence.NewMemoryStore()}
}

// WithSaveTeamError 注入 SaveTeam 错误
func (m *MockStore) WithSaveTeamError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveTeamErr = err
	return m
}

// WithGetTeamError 注入 GetTeam 错误
func (m *MockStore) WithGetTeamError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getTeamErr = err
	return m
}

// WithAppendError 注入 AppendMessage 错误
func (m *MockStore) WithAppendError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
	return m
}

// WithGetMessagesError 注入 GetMessages 错误
func (m *MockStore) WithGetMessagesError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getMsgsErr = err
	return m
}

func (m *MockStore) SaveTeam(ctx context.Context, key string, t *team.Team) error {
	m.mu.Lock()
	m.saveTeamCalls++
	err := m.saveTeamErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryStore.SaveTeam(ctx, key, t)
}

func (m *MockStore) GetTeam(ctx context.Context, key string) (*team.Team, error) {
	m.mu.Lock()
	m.getTeamCalls++
	err := m.getTeamErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryStore.GetTeam(ctx, key)
}

func (m *MockStore) AppendMessage(ctx context.Context, key string, msg types.ConversationMessage) error {
	m.mu.Lock()
	m.appendCalls++
	err := m.appendErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryStore.AppendMessage(ctx, key, msg)
}

func (m *MockStore) GetMessages(ctx context.Context, key string) ([]types.ConversationMessage, error) {
	m.mu.Lock()
	err := m.getMsgsErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryStore.GetMessages(ctx, key)
}

// SaveTeamCalls 返回 SaveTeam 调用次数
func (m *MockStore) SaveTeamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveTeamCalls
}

// GetTeamCalls 返回 GetTeam 调用次数
func (m *MockStore) GetTeamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getTeamCalls
}

// AppendCalls 返回 AppendMessage 调用次数
func (m *MockStore) AppendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCalls
}

var _ persistence.ConversationStore = (*MockStore)(nil)
