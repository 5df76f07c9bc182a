// =============================================================================
// 📦 tenex 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("tenex.yaml").
//	    WithEnvPrefix("TENEX").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/tenex/agent"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 tenex 的完整配置结构
type Config struct {
	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// LLM 默认 Provider 配置，Agent 未单独指定时使用
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Agents Agent 目录
	Agents []agent.Config `yaml:"agents" env:"-"`

	// Project 项目元数据
	Project ProjectConfig `yaml:"project" env:"PROJECT"`

	// Store 会话存储配置
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Relay 中继连接配置
	Relay RelayConfig `yaml:"relay" env:"RELAY"`

	// Conversation 会话行为配置
	Conversation ConversationConfig `yaml:"conversation" env:"CONVERSATION"`

	// Server 健康检查与指标 HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// LLMConfig 默认 LLM 配置
type LLMConfig struct {
	// Provider 名称: openai, deepseek, qwen, openrouter, ollama 或任意 OpenAI 兼容服务
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（已知 Provider 可省略）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 采样温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 单次回复最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// ProjectConfig 项目元数据
type ProjectConfig struct {
	Name           string       `yaml:"name" env:"NAME"`
	Description    string       `yaml:"description" env:"DESCRIPTION"`
	RepositoryPath string       `yaml:"repository_path" env:"REPOSITORY_PATH"`
	Specs          []agent.Spec `yaml:"specs" env:"-"`
}

// StoreConfig 会话存储配置
type StoreConfig struct {
	// 类型: memory, file, redis, sql
	Type string `yaml:"type" env:"TYPE"`
	// 文件存储根目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// 每个会话最多保留的消息数，0 表示不限制
	MaxMessages int `yaml:"max_messages" env:"MAX_MESSAGES"`

	Redis RedisConfig    `yaml:"redis" env:"REDIS"`
	SQL   DatabaseConfig `yaml:"sql" env:"SQL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	PoolSize  int           `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
	TLS       bool          `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 完整连接串，非空时优先
	DSN string `yaml:"dsn" env:"DSN"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 时为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RelayConfig 中继配置
type RelayConfig struct {
	// WebSocket 地址，如 wss://relay.example.com
	URL string `yaml:"url" env:"URL"`
	// 订阅 ID
	SubscriptionID string `yaml:"subscription_id" env:"SUBSCRIPTION_ID"`
	// 只处理该时间之后的事件，0 表示从连接时刻开始
	Since time.Duration `yaml:"since" env:"SINCE"`
	// 等待 OK 的时间
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT"`
	Reconnect      bool          `yaml:"reconnect" env:"RECONNECT"`
	MaxReconnects  int           `yaml:"max_reconnects" env:"MAX_RECONNECTS"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	BufferSize     int           `yaml:"buffer_size" env:"BUFFER_SIZE"`
	PublishRate    float64       `yaml:"publish_rate" env:"PUBLISH_RATE"`
	PublishBurst   int           `yaml:"publish_burst" env:"PUBLISH_BURST"`
	// 是否校验入站事件签名
	VerifySignatures bool `yaml:"verify_signatures" env:"VERIFY_SIGNATURES"`
}

// ConversationConfig 会话行为配置
type ConversationConfig struct {
	// 纳入提示词的最近消息条数
	HistoryWindow int `yaml:"history_window" env:"HISTORY_WINDOW"`
	// 历史消息 token 上限，0 表示不限制
	HistoryTokenBudget int `yaml:"history_token_budget" env:"HISTORY_TOKEN_BUDGET"`
	// 是否流式生成并推送输入状态
	StreamTyping bool `yaml:"stream_typing" env:"STREAM_TYPING"`
	// 输入状态推送间隔
	TypingInterval time.Duration `yaml:"typing_interval" env:"TYPING_INTERVAL"`
	// 并发处理事件的 worker 上限
	Workers int `yaml:"workers" env:"WORKERS"`
	// 待处理事件队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 在 Redis 中登记已处理事件，重启回放时跳过，连接参数沿用 store.redis
	Dedupe bool `yaml:"dedupe" env:"DEDUPE"`
	// 登记保留时间
	DedupeTTL time.Duration `yaml:"dedupe_ttl" env:"DEDUPE_TTL"`
}

// ServerConfig 健康检查与指标服务配置
type ServerConfig struct {
	// 是否启动 HTTP 服务
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// /sessions 的 JWT 认证，Secret 与 PublicKey 都为空时不认证
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 校验配置
type JWTConfig struct {
	// HS256 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "TENEX",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return err
	}
	l.applyAgentSecrets(cfg)
	return nil
}

// applyAgentSecrets 允许用 <PREFIX>_AGENT_<NAME>_SECRET_KEY 与 _API_KEY 覆盖 Agent 的密钥，
// 避免把私钥写进配置文件
func (l *Loader) applyAgentSecrets(cfg *Config) {
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		key := l.envPrefix + "_AGENT_" + envName(a.Name)
		if v := os.Getenv(key + "_SECRET_KEY"); v != "" {
			a.SecretKey = v
		}
		if v := os.Getenv(key + "_API_KEY"); v != "" && a.LLM != nil {
			a.LLM.APIKey = v
		}
	}
}

// envName 把 Agent 名称转成环境变量片段: code-reviewer → CODE_REVIEWER
func envName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}
