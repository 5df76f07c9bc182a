// MockExecutor 是 tools.Executor 的模拟实现。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/tenex/llm"
	"github.com/BaSui01/tenex/llm/tools"
)

// ExecutedBatch 一次 Execute 调用
type ExecutedBatch struct {
	Calls   []tools.ToolInvocation
	Context tools.ToolContext
}

// MockExecutor 按工具名返回预设输出
type MockExecutor struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]string
	schemas []llm.ToolSchema
	batches []ExecutedBatch
}

// NewMockExecutor 创建 MockExecutor
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		outputs: make(map[string]string),
		errs:    make(map[string]string),
	}
}

// WithTool 注册工具及其固定输出
func (m *MockExecutor) WithTool(name, description, output string) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[name] = output
	m.schemas = append(m.schemas, llm.ToolSchema{
		Name:        name,
		Description: description,
		Parameters:  []byte(`{"type":"object"}`),
	})
	return m
}

// WithToolError 使指定工具失败
func (m *MockExecutor) WithToolError(name, errMsg string) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[name] = errMsg
	return m
}

// Execute 实现 tools.Executor
func (m *MockExecutor) Execute(ctx context.Context, calls []tools.ToolInvocation, tc tools.ToolContext) []tools.ToolResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, ExecutedBatch{Calls: append([]tools.ToolInvocation(nil), calls...), Context: tc})

	results := make([]tools.ToolResult, len(calls))
	for i, c := range calls {
		results[i] = tools.ToolResult{CallID: c.ID, Name: c.Name}
		if msg, ok := m.errs[c.Name]; ok {
			results[i].Error = msg
			continue
		}
		out, ok := m.outputs[c.Name]
		if !ok {
			results[i].Error = "tool not found: " + c.Name
			continue
		}
		results[i].Output = out
	}
	return results
}

// Schemas 实现 tools.Executor
func (m *MockExecutor) Schemas() []llm.ToolSchema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.ToolSchema(nil), m.schemas...)
}

// Batches 返回 Execute 调用记录
func (m *MockExecutor) Batches() []ExecutedBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedBatch(nil), m.batches...)
}

var _ tools.Executor = (*MockExecutor)(nil)
