package types

import (
	"strings"
	"time"
)

// SignalType 是 Agent 回合结束时发出的协调信号类型
type SignalType string

const (
	SignalContinue           SignalType = "continue"
	SignalReadyForTransition SignalType = "ready_for_transition"
	SignalNeedInput          SignalType = "need_input"
	SignalBlocked            SignalType = "blocked"
	SignalComplete           SignalType = "complete"
)

// SignalTypes lists every recognized signal type.
var SignalTypes = []SignalType{
	SignalContinue,
	SignalReadyForTransition,
	SignalNeedInput,
	SignalBlocked,
	SignalComplete,
}

// ParseSignalType 大小写不敏感地解析信号类型
func ParseSignalType(s string) (SignalType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for _, t := range SignalTypes {
		if string(t) == normalized {
			return t, true
		}
	}
	return "", false
}

// ConversationSignal 是 Agent 之间唯一的协调原语
type ConversationSignal struct {
	Type   SignalType `json:"type"`
	Reason string     `json:"reason,omitempty"`
}

// ConversationMessage 是追加式对话记录中的一条
type ConversationMessage struct {
	ID        string              `json:"id"`
	AgentName string              `json:"agent_name"`
	Content   string              `json:"content"`
	Timestamp time.Time           `json:"timestamp"`
	Signal    *ConversationSignal `json:"signal,omitempty"`
}

// HasSignal reports whether the message carries a signal.
func (m ConversationMessage) HasSignal() bool {
	return m.Signal != nil && m.Signal.Type != ""
}

// TailMessages 返回最后 n 条消息；n <= 0 时返回全部
func TailMessages(msgs []ConversationMessage, n int) []ConversationMessage {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
