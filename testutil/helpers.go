package testutil

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/tenex/types"
)

// TestContext 返回 30s 超时的测试上下文，测试结束时自动取消
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertMessageAuthors 断言会话历史的作者顺序，用户消息的作者为空串
func AssertMessageAuthors(t *testing.T, want []string, msgs []types.ConversationMessage) {
	t.Helper()
	got := make([]string, 0, len(msgs))
	for _, m := range msgs {
		got = append(got, m.AgentName)
	}
	if !slices.Equal(want, got) {
		t.Errorf("conversation authors:\n want %q\n  got %q", want, got)
	}
}

// AssertContains 断言 s 包含 substr
func AssertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
