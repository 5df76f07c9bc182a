package fixtures

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/types"
)

// =============================================================================
// 💬 LLM 回复
// =============================================================================

// WithSignal 在内容后追加 SIGNAL / REASON 文本块
func WithSignal(content string, t types.SignalType, reason string) string {
	return fmt.Sprintf("%s\n\nSIGNAL: %s\nREASON: %s", content, t, reason)
}

// SimpleResponse 返回单条文本回复
func SimpleResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-1",
		Provider: "mock",
		Model:    "mock-model",
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: llm.ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// SignalToolCall 返回 conversation_signal 工具调用
func SignalToolCall(t types.SignalType, reason string) llm.ToolCall {
	args, _ := json.Marshal(map[string]string{"type": string(t), "reason": reason})
	return llm.ToolCall{ID: "call_signal", Name: "conversation_signal", Arguments: args}
}

// ToolCall 返回普通工具调用
func ToolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// TeamFormationJSON 返回团队组建回复 JSON
func TeamFormationJSON(lead string, members []string, stages ...[]string) string {
	type stage struct {
		Participants       []string `json:"participants"`
		Purpose            string   `json:"purpose"`
		ExpectedOutcome    string   `json:"expectedOutcome"`
		TransitionCriteria string   `json:"transitionCriteria"`
	}
	plan := make([]stage, len(stages))
	for i, p := range stages {
		plan[i] = stage{
			Participants:       p,
			Purpose:            fmt.Sprintf("stage %d", i+1),
			ExpectedOutcome:    "done",
			TransitionCriteria: "all ready",
		}
	}
	data, _ := json.Marshal(map[string]any{
		"team": map[string]any{"lead": lead, "members": members},
		"conversationPlan": map[string]any{
			"stages":              plan,
			"estimatedComplexity": len(stages),
		},
		"reasoning": "fixture",
	})
	return string(data)
}
