package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, RelayConfig{}, cfg.Relay)
	assert.NotEqual(t, ConversationConfig{}, cfg.Conversation)
	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Empty(t, cfg.Agents)
}

// --- Individual Default*Config functions ---

func TestDefaultLLMConfig(t *testing.T) {
	c := DefaultLLMConfig()
	assert.Equal(t, "openai", c.Provider)
	assert.Equal(t, 2*time.Minute, c.Timeout)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 0.7, c.Temperature)
	assert.Equal(t, 2048, c.MaxTokens)
}

func TestDefaultStoreConfig(t *testing.T) {
	c := DefaultStoreConfig()
	assert.Equal(t, "memory", c.Type)
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
	assert.Equal(t, "tenex:", c.Redis.KeyPrefix)
	assert.Equal(t, "postgres", c.SQL.Driver)
	assert.Equal(t, 5432, c.SQL.Port)
}

func TestDefaultRelayConfig(t *testing.T) {
	c := DefaultRelayConfig()
	assert.Empty(t, c.URL)
	assert.Equal(t, "tenex", c.SubscriptionID)
	assert.True(t, c.Reconnect)
	assert.True(t, c.VerifySignatures)
	assert.Equal(t, 10*time.Second, c.PublishTimeout)
}

func TestDefaultConversationConfig(t *testing.T) {
	c := DefaultConversationConfig()
	assert.Equal(t, 10, c.HistoryWindow)
	assert.Equal(t, time.Second, c.TypingInterval)
	assert.False(t, c.StreamTyping)
	assert.Equal(t, 16, c.Workers)
}

func TestDefaultServerConfig(t *testing.T) {
	c := DefaultServerConfig()
	assert.True(t, c.Enabled)
	assert.Equal(t, ":9091", c.Addr)
	assert.Equal(t, "tenex", c.MetricsNamespace)
	assert.Equal(t, 15*time.Second, c.ShutdownTimeout)
}

func TestDefaultLogConfig(t *testing.T) {
	c := DefaultLogConfig()
	assert.Equal(t, "info", c.Level)
	assert.Equal(t, "json", c.Format)
	assert.Equal(t, []string{"stdout"}, c.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	c := DefaultTelemetryConfig()
	assert.False(t, c.Enabled)
	assert.Equal(t, "localhost:4317", c.OTLPEndpoint)
	assert.Equal(t, "tenex", c.ServiceName)
	assert.Equal(t, 0.1, c.SampleRate)
}
