// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log:
  level: "debug"
  format: "console"

llm:
  provider: "deepseek"
  model: "deepseek-chat"
  temperature: 0.3

agents:
  - name: "orchestrator"
    role: "routes requests"
    instructions: "Pick the team."
    secret_key: "secret-orchestrator"
    orchestrator: true
  - name: "code-reviewer"
    role: "reviewer"
    instructions: "Review the code."
    secret_key: "secret-reviewer"
    tools: ["read_file"]
    llm:
      provider: "ollama"
      model: "qwen2.5"

project:
  name: "tenex"
  description: "multi-agent conversations"
  specs:
    - name: "relay"
      summary: "websocket relay client"

store:
  type: "redis"
  redis:
    addr: "redis.example.com:6379"
    ttl: 24h

relay:
  url: "wss://relay.example.com"
  publish_rate: 5

conversation:
  history_window: 20
  stream_typing: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Empty(t, cfg.Agents)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(writeConfig(t, sampleYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
	// 未在文件中出现的字段保留默认值
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)

	require.Len(t, cfg.Agents, 2)
	assert.True(t, cfg.Agents[0].Orchestrator)
	assert.Equal(t, []string{"read_file"}, cfg.Agents[1].Tools)
	require.NotNil(t, cfg.Agents[1].LLM)
	assert.Equal(t, "ollama", cfg.Agents[1].LLM.Provider)
	assert.Nil(t, cfg.Agents[0].LLM)

	require.Len(t, cfg.Project.Specs, 1)
	assert.Equal(t, "relay", cfg.Project.Specs[0].Name)

	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, 24*time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, "tenex:", cfg.Store.Redis.KeyPrefix)

	assert.Equal(t, "wss://relay.example.com", cfg.Relay.URL)
	assert.Equal(t, 5.0, cfg.Relay.PublishRate)
	assert.True(t, cfg.Relay.Reconnect)

	assert.Equal(t, 20, cfg.Conversation.HistoryWindow)
	assert.True(t, cfg.Conversation.StreamTyping)

	require.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("TENEX_LOG_LEVEL", "warn")
	t.Setenv("TENEX_LOG_OUTPUT_PATHS", "stdout, /var/log/tenex.log")
	t.Setenv("TENEX_LLM_API_KEY", "sk-env")
	t.Setenv("TENEX_LLM_TEMPERATURE", "1.1")
	t.Setenv("TENEX_RELAY_URL", "ws://localhost:7777")
	t.Setenv("TENEX_RELAY_PUBLISH_TIMEOUT", "3s")
	t.Setenv("TENEX_STORE_SQL_PORT", "6543")
	t.Setenv("TENEX_CONVERSATION_STREAM_TYPING", "true")
	t.Setenv("TENEX_SERVER_ENABLED", "false")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/var/log/tenex.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, 1.1, cfg.LLM.Temperature)
	assert.Equal(t, "ws://localhost:7777", cfg.Relay.URL)
	assert.Equal(t, 3*time.Second, cfg.Relay.PublishTimeout)
	assert.Equal(t, 6543, cfg.Store.SQL.Port)
	assert.True(t, cfg.Conversation.StreamTyping)
	assert.False(t, cfg.Server.Enabled)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	t.Setenv("TENEX_LLM_MODEL", "deepseek-reasoner")
	t.Setenv("TENEX_RELAY_URL", "wss://other.example.com")

	cfg, err := NewLoader().WithConfigPath(writeConfig(t, sampleYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "deepseek-reasoner", cfg.LLM.Model)
	assert.Equal(t, "wss://other.example.com", cfg.Relay.URL)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
}

func TestLoader_AgentSecretsFromEnv(t *testing.T) {
	t.Setenv("TENEX_AGENT_CODE_REVIEWER_SECRET_KEY", "from-env")
	t.Setenv("TENEX_AGENT_CODE_REVIEWER_API_KEY", "sk-reviewer")
	// orchestrator 没有单独的 llm 配置，API Key 无处可放
	t.Setenv("TENEX_AGENT_ORCHESTRATOR_API_KEY", "ignored")

	cfg, err := NewLoader().WithConfigPath(writeConfig(t, sampleYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "secret-orchestrator", cfg.Agents[0].SecretKey)
	assert.Nil(t, cfg.Agents[0].LLM)
	assert.Equal(t, "from-env", cfg.Agents[1].SecretKey)
	assert.Equal(t, "sk-reviewer", cfg.Agents[1].LLM.APIKey)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LOG_LEVEL", "error")
	t.Setenv("TENEX_LOG_LEVEL", "debug")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("TENEX_RELAY_PUBLISH_TIMEOUT", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TENEX_RELAY_PUBLISH_TIMEOUT")
}

func TestLoader_WithValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Contains(t, err.Error(), "relay.url is required")
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/tenex.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "log: [unclosed")
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestMustLoad(t *testing.T) {
	cfg := MustLoad(writeConfig(t, sampleYAML))
	assert.Equal(t, "tenex", cfg.Project.Name)

	assert.Panics(t, func() { MustLoad(writeConfig(t, "log: [unclosed")) })
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "CODE_REVIEWER", envName("code-reviewer"))
	assert.Equal(t, "PLANNER2", envName("planner2"))
	assert.Equal(t, "A_B_C", envName("a.b c"))
}
