package orchestrator

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSON 从模型回复中取出 JSON 对象文本。
// 优先使用包含 '{' 的代码块，其次取第一个括号平衡的顶层 {...}；
// 平衡片段后仍有成员时取到最后一个 '}'，找不到平衡的结尾时返回从第一个 '{' 到末尾的内容，
// 交给 RepairJSON 处理。
func ExtractJSON(content string) (string, bool) {
	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		body := strings.TrimSpace(m[1])
		if strings.HasPrefix(body, "{") {
			return body, true
		}
	}

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}
	end, ok := balancedEnd(content[start:])
	if !ok {
		return strings.TrimSpace(content[start:]), true
	}
	end += start
	// 平衡片段后紧跟逗号，说明对象被多余的括号提前闭合
	if hasMoreMembers(content[end+1:]) {
		if last := strings.LastIndexByte(content, '}'); last > end {
			return content[start : last+1], true
		}
	}
	return content[start : end+1], true
}

// balancedEnd 返回与 s[0] 的 '{' 匹配的 '}' 下标，忽略字符串中的括号
func balancedEnd(s string) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// RepairJSON 对常见的结构性错误做启发式修复：
// 去掉对象与数组末尾多余的逗号，丢弃无法匹配或提前闭合顶层的括号，
// 转义字符串中的裸换行，补全未结束的字符串与缺失的闭合括号。
func RepairJSON(s string) string {
	var (
		out      strings.Builder
		stack    []byte
		inString bool
		escaped  bool
	)
	out.Grow(len(s) + 8)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			case ch == '\n':
				out.WriteString(`\n`)
				continue
			case ch == '\r':
				continue
			}
			out.WriteByte(ch)
			continue
		}

		switch ch {
		case '"':
			inString = true
			out.WriteByte(ch)
		case '{':
			stack = append(stack, '}')
			out.WriteByte(ch)
		case '[':
			stack = append(stack, ']')
			out.WriteByte(ch)
		case '}', ']':
			idx := lastIndexByte(stack, ch)
			if idx < 0 {
				continue
			}
			if idx == 0 && len(stack) == 1 && hasMoreMembers(s[i+1:]) {
				// 顶层被提前闭合，后面还有成员
				continue
			}
			for len(stack) > idx {
				trimTrailingComma(&out)
				out.WriteByte(stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
		default:
			out.WriteByte(ch)
		}
	}

	if inString {
		if escaped {
			out.WriteByte('\\')
		}
		out.WriteByte('"')
	}
	for len(stack) > 0 {
		trimTrailingComma(&out)
		out.WriteByte(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
	}
	return out.String()
}

func lastIndexByte(stack []byte, b byte) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == b {
			return i
		}
	}
	return -1
}

// hasMoreMembers 判断剩余内容是否以逗号开头（跳过空白）
func hasMoreMembers(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return strings.HasPrefix(rest, ",")
}

func trimTrailingComma(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(trimmed, ",") {
		trimmed = trimmed[:len(trimmed)-1]
		b.Reset()
		b.WriteString(trimmed)
	}
}
