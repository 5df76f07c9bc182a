// Package fixtures 提供测试数据样例。
package fixtures

import (
	"fmt"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/types"
)

// =============================================================================
// 🤖 Agent 目录
// =============================================================================

// AgentConfig 返回带确定性密钥的 Agent 配置
func AgentConfig(name, role string) agent.Config {
	return agent.Config{
		Name:         name,
		Role:         role,
		Instructions: fmt.Sprintf("You are the %s of the team.", role),
		SecretKey:    "secret-" + name,
	}
}

// Catalog 返回常用的四个 Agent：orchestrator、planner、coder、reviewer
func Catalog() []agent.Config {
	orch := AgentConfig("orchestrator", "team formation")
	orch.Orchestrator = true
	return []agent.Config{
		orch,
		AgentConfig("planner", "planner"),
		AgentConfig("coder", "software engineer"),
		AgentConfig("reviewer", "code reviewer"),
	}
}

// =============================================================================
// 📨 入站事件
// =============================================================================

// UserEvent 返回一条用户发布的根事件
func UserEvent(id, content string) *types.Event {
	return &types.Event{
		ID:        id,
		PubKey:    "user-pubkey",
		CreatedAt: 1700000000,
		Kind:      types.KindTextNote,
		Content:   content,
	}
}

// ReplyEvent 返回回复 rootID 的事件
func ReplyEvent(id, rootID, pubkey, content string) *types.Event {
	return &types.Event{
		ID:        id,
		PubKey:    pubkey,
		CreatedAt: 1700000001,
		Kind:      types.KindTextNote,
		Tags:      []types.Tag{{"E", rootID}, {"e", rootID, "", "root"}},
		Content:   content,
	}
}

// Mention 给事件追加 p 标签
func Mention(ev *types.Event, pubkeys ...string) *types.Event {
	for _, pk := range pubkeys {
		ev.Tags = append(ev.Tags, types.Tag{"p", pk})
	}
	return ev
}
