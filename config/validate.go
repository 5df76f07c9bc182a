package config

import (
	"fmt"
	"strings"

	"github.com/BaSui01/tenex/agent"
)

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validStoreTypes = map[string]bool{"memory": true, "file": true, "redis": true, "sql": true}
)

// Validate 验证配置，一次性汇总所有问题
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, "llm max_tokens must not be negative")
	}

	errs = append(errs, c.validateAgents()...)

	if !validStoreTypes[c.Store.Type] {
		errs = append(errs, fmt.Sprintf("unknown store type %q", c.Store.Type))
	}
	if c.Store.Type == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, "store.redis.addr is required for redis store")
	}

	if c.Relay.URL == "" {
		errs = append(errs, "relay.url is required")
	} else if !strings.HasPrefix(c.Relay.URL, "ws://") && !strings.HasPrefix(c.Relay.URL, "wss://") {
		errs = append(errs, fmt.Sprintf("relay.url %q must use ws:// or wss://", c.Relay.URL))
	}

	if c.Conversation.HistoryWindow < 0 {
		errs = append(errs, "conversation.history_window must not be negative")
	}
	if c.Conversation.Workers <= 0 {
		errs = append(errs, "conversation.workers must be positive")
	}
	if c.Conversation.Dedupe && c.Store.Redis.Addr == "" {
		errs = append(errs, "store.redis.addr is required when conversation.dedupe is enabled")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, "server.addr is required when server is enabled")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateAgents() []string {
	if len(c.Agents) == 0 {
		return []string{"at least one agent must be configured"}
	}

	var errs []string
	names := make(map[string]bool, len(c.Agents))
	orchestrators := 0
	for i, a := range c.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("agents[%d]: name is required", i))
			continue
		}
		if names[a.Name] {
			errs = append(errs, fmt.Sprintf("duplicate agent name %q", a.Name))
		}
		names[a.Name] = true
		if _, err := agent.NewIdentity(a.SecretKey); err != nil {
			errs = append(errs, fmt.Sprintf("agent %q: %v", a.Name, err))
		}
		if a.Orchestrator {
			orchestrators++
		}
	}
	if orchestrators > 1 {
		errs = append(errs, "at most one agent may be marked as orchestrator")
	}
	return errs
}
