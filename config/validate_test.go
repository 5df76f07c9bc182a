package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/agent/persistence"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Relay.URL = "wss://relay.example.com"
	cfg.Agents = []agent.Config{
		{Name: "orchestrator", SecretKey: "secret-orchestrator", Orchestrator: true},
		{Name: "coder", SecretKey: "secret-coder"},
	}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: `invalid log level "verbose"`,
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.LLM.Temperature = 2.5 },
			wantErr: "temperature must be between 0 and 2",
		},
		{
			name:    "no agents",
			mutate:  func(c *Config) { c.Agents = nil },
			wantErr: "at least one agent",
		},
		{
			name: "duplicate agent",
			mutate: func(c *Config) {
				c.Agents = append(c.Agents, agent.Config{Name: "coder", SecretKey: "other"})
			},
			wantErr: `duplicate agent name "coder"`,
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.Agents[1].SecretKey = "" },
			wantErr: `agent "coder"`,
		},
		{
			name:    "unnamed agent",
			mutate:  func(c *Config) { c.Agents[1].Name = "" },
			wantErr: "agents[1]: name is required",
		},
		{
			name:    "two orchestrators",
			mutate:  func(c *Config) { c.Agents[1].Orchestrator = true },
			wantErr: "at most one agent",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Type = "mongo" },
			wantErr: `unknown store type "mongo"`,
		},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Store.Type = "redis"
				c.Store.Redis.Addr = ""
			},
			wantErr: "store.redis.addr is required",
		},
		{
			name:    "missing relay",
			mutate:  func(c *Config) { c.Relay.URL = "" },
			wantErr: "relay.url is required",
		},
		{
			name:    "http relay",
			mutate:  func(c *Config) { c.Relay.URL = "https://relay.example.com" },
			wantErr: "must use ws:// or wss://",
		},
		{
			name:    "no workers",
			mutate:  func(c *Config) { c.Conversation.Workers = 0 },
			wantErr: "conversation.workers must be positive",
		},
		{
			name: "dedupe without redis",
			mutate: func(c *Config) {
				c.Conversation.Dedupe = true
				c.Store.Redis.Addr = ""
			},
			wantErr: "required when conversation.dedupe is enabled",
		},
		{
			name:    "sample rate",
			mutate:  func(c *Config) { c.Telemetry.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateAggregates(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.URL = ""
	cfg.Agents = nil
	cfg.Store.Type = "bogus"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.url is required")
	assert.Contains(t, err.Error(), "at least one agent")
	assert.Contains(t, err.Error(), "unknown store type")
}

func TestConvert(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.APIKey = "sk"
	cfg.Store.Type = "sql"
	cfg.Store.SQL.MaxOpenConns = 7
	cfg.Project = ProjectConfig{Name: "p", Specs: []agent.Spec{{Name: "s"}}}

	pc := cfg.LLM.ProviderConfig()
	assert.Equal(t, "openai", pc.Provider)
	assert.Equal(t, "sk", pc.APIKey)
	assert.Equal(t, cfg.LLM.Model, pc.Model)

	sc := cfg.Store.Persistence()
	assert.Equal(t, persistence.StoreTypeSQL, sc.Type)
	assert.Equal(t, "postgres", sc.SQL.Driver)
	assert.Equal(t, 7, sc.SQL.Pool.MaxOpenConns)
	assert.Equal(t, "tenex:", sc.Redis.KeyPrefix)

	rc := cfg.Relay.Client()
	assert.Equal(t, "wss://relay.example.com", rc.URL)
	assert.NotNil(t, rc.Verify)
	cfg.Relay.VerifySignatures = false
	assert.Nil(t, cfg.Relay.Client().Verify)

	mc := cfg.Server.Manager()
	assert.Equal(t, ":9091", mc.Addr)
	assert.Equal(t, cfg.Server.ShutdownTimeout, mc.ShutdownTimeout)
	assert.Equal(t, 2*cfg.Server.ReadTimeout, mc.IdleTimeout)

	ctx := cfg.Project.Context()
	assert.Equal(t, "p", ctx.Name)
	require.Len(t, ctx.Specs, 1)

	lc := cfg.Ledger()
	assert.Equal(t, "localhost:6379", lc.Addr)
	assert.Equal(t, "tenex:", lc.KeyPrefix)
	assert.Equal(t, 24*time.Hour, lc.TTL)
}
