package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.eventsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.agentResponsesTotal)
	assert.NotNil(t, collector.stageTransitions)
}

func TestCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() { NewCollector(nextTestNamespace(), nil) })
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/health", 200, 10*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/health", 200, 5*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
}

func TestCollector_RecordEvent(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordEvent("ok", 200*time.Millisecond)
	collector.RecordEvent("error", time.Second)
	collector.SetActiveSessions(3)
	collector.RecordTeamFormation("mention", "ok")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.eventsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.eventsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.activeSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.teamFormations.WithLabelValues("mention", "ok")))
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLLMRequest("openai", "gpt-4o", "success", time.Second, 100, 50)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o", "success")))
	assert.Equal(t, float64(100), testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o", "prompt")))
	assert.Equal(t, float64(50), testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o", "completion")))
}

func TestCollector_RecordAgentMetrics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAgentResponse("coder", "success", time.Second)
	collector.RecordSignal("coder", "ready_for_transition")
	collector.RecordToolCall("search", false)
	collector.RecordToolCall("search", true)
	collector.RecordStageTransition(false)
	collector.RecordStageTransition(true)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.agentResponsesTotal.WithLabelValues("coder", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.signalsTotal.WithLabelValues("coder", "ready_for_transition")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.toolCallsTotal.WithLabelValues("search", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.stageTransitions.WithLabelValues("complete")))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		c.RecordEvent("ok", time.Millisecond)
		c.SetActiveSessions(1)
		c.RecordTeamFormation("mention", "ok")
		c.RecordLLMRequest("p", "m", "success", time.Millisecond, 1, 1)
		c.RecordAgentResponse("a", "success", time.Millisecond)
		c.RecordSignal("a", "continue")
		c.RecordToolCall("t", false)
		c.RecordStageTransition(true)
	})
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, statusCode(tt.code))
	}
}
