package config

import (
	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/agent/persistence"
	"github.com/BaSui01/tenex/internal/cache"
	"github.com/BaSui01/tenex/internal/database"
	"github.com/BaSui01/tenex/internal/relay"
	"github.com/BaSui01/tenex/internal/server"
	"github.com/BaSui01/tenex/llm/factory"
)

// ProviderConfig 转换为默认 Provider 配置
func (c LLMConfig) ProviderConfig() factory.ProviderConfig {
	return factory.ProviderConfig{
		Provider:   c.Provider,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Model:      c.Model,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
	}
}

// Context 转换为提示词使用的项目上下文
func (c ProjectConfig) Context() agent.ProjectContext {
	return agent.ProjectContext{
		Name:           c.Name,
		Description:    c.Description,
		RepositoryPath: c.RepositoryPath,
		Specs:          c.Specs,
	}
}

// Persistence 转换为会话存储配置
func (c StoreConfig) Persistence() persistence.StoreConfig {
	return persistence.StoreConfig{
		Type:    persistence.StoreType(c.Type),
		BaseDir: c.BaseDir,
		Redis: persistence.RedisStoreConfig{
			Addr:      c.Redis.Addr,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			PoolSize:  c.Redis.PoolSize,
			KeyPrefix: c.Redis.KeyPrefix,
			TTL:       c.Redis.TTL,
			TLS:       c.Redis.TLS,
		},
		SQL:         c.SQL.Database(),
		MaxMessages: c.MaxMessages,
	}
}

// Ledger 转换为事件登记簿配置，连接参数沿用 store.redis
func (c *Config) Ledger() cache.Config {
	cfg := cache.DefaultConfig()
	r := c.Store.Redis
	cfg.Addr = r.Addr
	cfg.Password = r.Password
	cfg.DB = r.DB
	cfg.TLS = r.TLS
	if r.PoolSize > 0 {
		cfg.PoolSize = r.PoolSize
	}
	if r.KeyPrefix != "" {
		cfg.KeyPrefix = r.KeyPrefix
	}
	if c.Conversation.DedupeTTL > 0 {
		cfg.TTL = c.Conversation.DedupeTTL
	}
	return cfg
}

// Database 转换为数据库连接配置
func (d DatabaseConfig) Database() database.Config {
	pool := database.DefaultPoolConfig()
	if d.MaxOpenConns > 0 {
		pool.MaxOpenConns = d.MaxOpenConns
	}
	if d.MaxIdleConns > 0 {
		pool.MaxIdleConns = d.MaxIdleConns
	}
	if d.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = d.ConnMaxLifetime
	}
	return database.Config{
		Driver:   d.Driver,
		DSN:      d.DSN,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Name:     d.Name,
		SSLMode:  d.SSLMode,
		Pool:     pool,
	}
}

// Client 转换为中继客户端配置。VerifySignatures 为 true 时挂上签名校验。
func (c RelayConfig) Client() relay.Config {
	cfg := relay.Config{
		URL:            c.URL,
		PublishTimeout: c.PublishTimeout,
		Reconnect:      c.Reconnect,
		MaxReconnects:  c.MaxReconnects,
		ReconnectDelay: c.ReconnectDelay,
		MaxBackoff:     c.MaxBackoff,
		BufferSize:     c.BufferSize,
		PublishRate:    c.PublishRate,
		PublishBurst:   c.PublishBurst,
	}
	if c.VerifySignatures {
		cfg.Verify = agent.VerifyEvent
	}
	return cfg
}

// Manager 转换为 HTTP 服务管理器配置
func (c ServerConfig) Manager() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = c.Addr
	if c.ReadTimeout > 0 {
		cfg.ReadTimeout = c.ReadTimeout
		cfg.IdleTimeout = 2 * c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = c.ShutdownTimeout
	}
	return cfg
}

// Auth 转换为运维端点的 JWT 配置
func (c ServerConfig) Auth() server.JWTConfig {
	return server.JWTConfig{
		Secret:    c.JWT.Secret,
		PublicKey: c.JWT.PublicKey,
		Issuer:    c.JWT.Issuer,
		Audience:  c.JWT.Audience,
	}
}
