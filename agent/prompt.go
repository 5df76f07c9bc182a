package agent

import (
	"fmt"
	"strings"

	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/llm/tokenizer"
	"github.com/BaSui01/tenex/types"
)

// PromptOverlay 在基础系统提示词之后追加内容，返回空串表示不追加
type PromptOverlay func(ectx EventContext) string

const signalTrailerInstructions = `When your turn is done, end your reply with exactly these two lines:
SIGNAL: <continue|ready_for_transition|need_input|blocked|complete>
REASON: <one short sentence>
Use continue while the stage still needs work, ready_for_transition when the stage outcome is met,
need_input when you need the user, blocked when you cannot proceed, complete when the whole request is done.`

const signalToolInstructions = `When your turn is done, call the conversation_signal tool once to report
continue, ready_for_transition, need_input, blocked or complete, with a short reason.`

const toolMarkerInstructions = `To call a tool, write <tool_use>{"name": "<tool>", "arguments": {...}}</tool_use> in your reply.`

func (a *Agent) buildSystemPrompt(ectx EventContext, schemas []llm.ToolSchema, native bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", a.cfg.Name)
	if a.cfg.Role != "" {
		fmt.Fprintf(&b, ", %s", a.cfg.Role)
	}
	b.WriteString(".\n")
	if a.cfg.Instructions != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(a.cfg.Instructions))
		b.WriteString("\n")
	}

	if size := a.TeamSize(); size > 1 {
		fmt.Fprintf(&b, "\nYou are one of %d agents collaborating in this conversation.\n", size)
	}
	if p := ectx.Project; p.Name != "" {
		fmt.Fprintf(&b, "\nProject: %s", p.Name)
		if p.Description != "" {
			fmt.Fprintf(&b, ": %s", p.Description)
		}
		b.WriteString("\n")
		if p.RepositoryPath != "" {
			fmt.Fprintf(&b, "Repository: %s\n", p.RepositoryPath)
		}
	}

	others := make([]AgentInfo, 0, len(ectx.AvailableAgents))
	for _, info := range ectx.AvailableAgents {
		if info.Name != a.cfg.Name {
			others = append(others, info)
		}
	}
	if len(others) > 0 {
		b.WriteString("\nOther agents:\n")
		for _, info := range others {
			fmt.Fprintf(&b, "- %s: %s\n", info.Name, info.Role)
		}
	}
	if len(ectx.Specs) > 0 {
		b.WriteString("\nKnown specifications:\n")
		for _, s := range ectx.Specs {
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Summary)
		}
	}

	if len(schemas) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, s := range schemas {
			if s.Name == SignalToolName {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
		}
		if !native {
			b.WriteString(toolMarkerInstructions)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if native {
		b.WriteString(signalToolInstructions)
	} else {
		b.WriteString(signalTrailerInstructions)
	}
	b.WriteString("\n")

	if overlay := a.promptOverlay(); overlay != nil {
		if extra := strings.TrimSpace(overlay(ectx)); extra != "" {
			b.WriteString("\n")
			b.WriteString(extra)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// historyMessages 取最近 HistoryWindow 条消息并按 token 预算裁剪，
// 跳过当前事件本身
func (a *Agent) historyMessages(history []types.ConversationMessage, current *types.Event) []llm.Message {
	filtered := make([]types.ConversationMessage, 0, len(history))
	for _, m := range history {
		if current != nil && m.ID == current.ID {
			continue
		}
		filtered = append(filtered, m)
	}
	filtered = types.TailMessages(filtered, a.deps.HistoryWindow)

	rendered := make([]string, len(filtered))
	for i, m := range filtered {
		rendered[i] = fmt.Sprintf("[%s]: %s", authorLabel(m), m.Content)
	}
	if a.deps.HistoryTokenBudget > 0 {
		start := tokenizer.TrimToBudget(a.deps.Tokenizer, rendered, a.deps.HistoryTokenBudget)
		filtered = filtered[start:]
		rendered = rendered[start:]
	}

	out := make([]llm.Message, len(filtered))
	for i, m := range filtered {
		role := llm.RoleUser
		if m.AgentName == a.cfg.Name {
			role = llm.RoleAssistant
		}
		out[i] = llm.Message{Role: role, Content: rendered[i]}
	}
	return out
}

func authorLabel(m types.ConversationMessage) string {
	if m.AgentName == "" {
		return "user"
	}
	return m.AgentName
}
