package team

import (
	"slices"
	"sync"
)

// TurnManager 管理单个阶段内的发言轮转，并发安全
type TurnManager struct {
	mu             sync.Mutex
	participants   []string
	primary        string
	currentSpeaker string
	lastSpeaker    string
	userSpoken     bool
}

// NewTurnManager 创建轮转管理器
func NewTurnManager(participants []string, primary string) *TurnManager {
	return &TurnManager{
		participants: slices.Clone(participants),
		primary:      primary,
	}
}

// SelectSpeaker 选择本轮发言人。
// 用户消息：主发言人（须为参与者）优先，否则第一个参与者，阶段为空时返回 ""。
// Agent 消息：返回 ""，状态不变。
func (m *TurnManager) SelectSpeaker(isUserMessage bool) string {
	if !isUserMessage {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSpeaker = ""
	m.userSpoken = true
	switch {
	case m.primary != "" && slices.Contains(m.participants, m.primary):
		m.currentSpeaker = m.primary
	case len(m.participants) > 0:
		m.currentSpeaker = m.participants[0]
	default:
		m.currentSpeaker = ""
	}
	return m.currentSpeaker
}

// RecordSpeech 记录 name 已发言
func (m *TurnManager) RecordSpeech(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSpeaker = name
	m.currentSpeaker = ""
}

// UpdateStageParticipants 切换到新阶段的参与者
func (m *TurnManager) UpdateStageParticipants(participants []string, primary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants = slices.Clone(participants)
	m.primary = primary
	m.userSpoken = false
}

func (m *TurnManager) LastSpeaker() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSpeaker
}

func (m *TurnManager) CurrentSpeaker() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSpeaker
}

func (m *TurnManager) Participants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.participants)
}

func (m *TurnManager) UserHasSpoken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userSpoken
}
