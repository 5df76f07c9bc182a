package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/types"
)

// SignalToolName 是结构化信号工具名
const SignalToolName = "conversation_signal"

// ParsedResponse 是 ParseSignal 的结果
type ParsedResponse struct {
	Content string
	Signal  *types.ConversationSignal
}

var (
	signalLine = regexp.MustCompile(`(?i)^\s*\**signal\**\s*:\s*\**\s*([a-z_ -]+?)\s*\**\s*$`)
	reasonLine = regexp.MustCompile(`(?i)^\s*\**reason\**\s*:\s*(.*?)\s*$`)

	signalNormalizer = strings.NewReplacer(" ", "_", "-", "_")
)

// ParseSignal 从回复末尾提取 SIGNAL / REASON 块。
// 信号类型无法识别时不附带信号，内容原样返回。
func ParseSignal(raw string) ParsedResponse {
	lines := strings.Split(strings.TrimRight(raw, " \t\r\n"), "\n")

	end := len(lines)
	start := end
	var sigType, reason string
	foundSignal := false
	for i := end - 1; i >= 0; i-- {
		line := lines[i]
		if m := signalLine.FindStringSubmatch(line); m != nil && !foundSignal {
			sigType = m[1]
			foundSignal = true
			start = i
			continue
		}
		if m := reasonLine.FindStringSubmatch(line); m != nil && reason == "" {
			reason = strings.TrimLeft(m[1], "* ")
			start = i
			continue
		}
		break
	}

	if !foundSignal {
		return ParsedResponse{Content: strings.TrimSpace(raw)}
	}
	t, ok := types.ParseSignalType(signalNormalizer.Replace(sigType))
	if !ok {
		return ParsedResponse{Content: strings.TrimSpace(raw)}
	}
	return ParsedResponse{
		Content: strings.TrimSpace(strings.Join(lines[:start], "\n")),
		Signal:  &types.ConversationSignal{Type: t, Reason: reason},
	}
}

// SignalTool 返回结构化信号工具定义
func SignalTool() llm.ToolSchema {
	names := make([]string, len(types.SignalTypes))
	for i, t := range types.SignalTypes {
		names[i] = string(t)
	}
	params, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{
				"type":        "string",
				"enum":        names,
				"description": "Coordination signal for the team lead",
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "Short justification",
			},
		},
		"required": []string{"type"},
	})
	return llm.ToolSchema{
		Name:        SignalToolName,
		Description: "Report how this turn affects the current conversation stage.",
		Parameters:  params,
	}
}

// SignalFromArguments 解码 conversation_signal 工具参数
func SignalFromArguments(args json.RawMessage) (*types.ConversationSignal, bool) {
	var payload struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, false
	}
	t, ok := types.ParseSignalType(payload.Type)
	if !ok {
		return nil, false
	}
	return &types.ConversationSignal{Type: t, Reason: strings.TrimSpace(payload.Reason)}, true
}
