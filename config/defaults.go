// =============================================================================
// 📦 tenex 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:          DefaultLogConfig(),
		LLM:          DefaultLLMConfig(),
		Store:        DefaultStoreConfig(),
		Relay:        DefaultRelayConfig(),
		Conversation: DefaultConversationConfig(),
		Server:       DefaultServerConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Timeout:     2 * time.Minute,
		MaxRetries:  3,
		Temperature: 0.7,
		MaxTokens:   2048,
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    "memory",
		BaseDir: "./data/conversations",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "tenex:",
		},
		SQL: DefaultDatabaseConfig(),
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "tenex",
		Name:            "tenex",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRelayConfig 返回默认中继配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		SubscriptionID:   "tenex",
		PublishTimeout:   10 * time.Second,
		Reconnect:        true,
		ReconnectDelay:   time.Second,
		MaxBackoff:       30 * time.Second,
		BufferSize:       256,
		VerifySignatures: true,
	}
}

// DefaultConversationConfig 返回默认会话配置
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		HistoryWindow:  10,
		TypingInterval: time.Second,
		Workers:        16,
		QueueSize:      256,
		DedupeTTL:      24 * time.Hour,
	}
}

// DefaultServerConfig 返回默认 HTTP 服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:          true,
		Addr:             ":9091",
		MetricsNamespace: "tenex",
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		ShutdownTimeout:  15 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "tenex",
		SampleRate:   0.1,
	}
}
