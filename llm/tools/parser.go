package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/tenex/llm"
)

// Parser 从一次 LLM 回复中解码工具调用，返回去除调用标记后的文本
type Parser interface {
	Parse(msg llm.Message) (text string, calls []ToolInvocation)
}

// ParserFor 按 Provider 能力选择解析器
func ParserFor(p llm.Provider) Parser {
	if p != nil && p.SupportsNativeFunctionCalling() {
		return NativeParser{}
	}
	return MarkerParser{}
}

// NativeParser 读取结构化 ToolCalls，文本原样返回
type NativeParser struct{}

func (NativeParser) Parse(msg llm.Message) (string, []ToolInvocation) {
	if len(msg.ToolCalls) == 0 {
		return msg.Content, nil
	}
	calls := make([]ToolInvocation, 0, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := tc.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		calls = append(calls, ToolInvocation{ID: id, Name: tc.Name, Arguments: args})
	}
	return msg.Content, calls
}

var markerPattern = regexp.MustCompile(`(?s)<tool_use>\s*(.*?)\s*</tool_use>`)

// MarkerParser 提取文本中的 <tool_use>{"name": ..., "arguments": {...}}</tool_use> 标记。
// 无法解析的标记保留在文本中。
type MarkerParser struct{}

func (MarkerParser) Parse(msg llm.Message) (string, []ToolInvocation) {
	content := msg.Content
	matches := markerPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, nil
	}

	var (
		b     strings.Builder
		calls []ToolInvocation
		prev  int
	)
	for _, m := range matches {
		body := content[m[2]:m[3]]
		var payload struct {
			ID        string          `json:"id"`
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
			Input     json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal([]byte(body), &payload); err != nil || payload.Name == "" {
			continue
		}
		args := payload.Arguments
		if len(args) == 0 {
			args = payload.Input
		}
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		id := payload.ID
		if id == "" {
			id = fmt.Sprintf("marker_%d", len(calls))
		}
		calls = append(calls, ToolInvocation{ID: id, Name: payload.Name, Arguments: args})

		b.WriteString(content[prev:m[0]])
		prev = m[1]
	}
	b.WriteString(content[prev:])
	return strings.TrimSpace(b.String()), calls
}
