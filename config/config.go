package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/teddyvoice/eventlog"
	"github.com/BaSui01/teddyvoice/gateway"
	"github.com/BaSui01/teddyvoice/internal/database"
	"github.com/BaSui01/teddyvoice/llm"
	"github.com/BaSui01/teddyvoice/llm/moderation"
	"github.com/BaSui01/teddyvoice/llm/speech"
	"github.com/BaSui01/teddyvoice/session"
	"github.com/BaSui01/teddyvoice/synthesis"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "TEDDYVOICE"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 teddyvoice 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Gateway 设备 WebSocket 网关配置
	Gateway gateway.Config `yaml:"gateway" env:"GATEWAY"`

	// Session 会话注册表配置
	Session session.RegistryConfig `yaml:"session" env:"SESSION"`

	// Pipeline 回合流水线配置
	Pipeline session.PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Synthesis 语音合成配置
	Synthesis SynthesisConfig `yaml:"synthesis" env:"SYNTHESIS"`

	// LLM 语言模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Moderation 内容审核配置
	Moderation ModerationConfig `yaml:"moderation" env:"MODERATION"`

	// Transcription 语音识别配置
	Transcription TranscriptionConfig `yaml:"transcription" env:"TRANSCRIPTION"`

	// EventLog 事件日志配置
	EventLog eventlog.Config `yaml:"eventlog" env:"EVENTLOG"`

	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Mongo MongoDB 配置
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`

	// Auth 设备鉴权配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 请求头读取超时
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	// 读取超时，0 表示不限（WebSocket 长连接）
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，0 表示不限（WebSocket 长连接）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 的请求速率
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 每个 IP 的突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// TLS 证书，留空时使用明文
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// TLS 私钥
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	// 家长端管理 API 允许的浏览器来源，留空拒绝跨域
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// SynthesisConfig 合成连接与合成服务配置
type SynthesisConfig struct {
	// Link 合成连接的声音与重连参数
	Link synthesis.Config `yaml:"link" env:"LINK"`
	// ElevenLabs 流式合成服务
	ElevenLabs speech.ElevenLabsConfig `yaml:"elevenlabs" env:"ELEVENLABS"`
	// Fallback ElevenLabs 连不上时的备用合成服务: openai | none
	Fallback string `yaml:"fallback" env:"FALLBACK"`
	// OpenAI 备用合成服务，api_key 留空时复用 llm.openai.api_key
	OpenAI speech.OpenAITTSConfig `yaml:"openai" env:"OPENAI"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// 系统提示词，留空使用内置的儿童陪伴提示
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// OpenAI 兼容接口
	OpenAI llm.OpenAIConfig `yaml:"openai" env:"OPENAI"`
}

// ModerationConfig 内容审核配置
type ModerationConfig struct {
	// 审核器: openai, keyword, none；多个时依次执行
	Providers []string `yaml:"providers" env:"PROVIDERS"`
	// 关键词黑名单（支持热更新）
	Blocklist []string `yaml:"blocklist" env:"BLOCKLIST"`
	// OpenAI 审核接口
	OpenAI moderation.OpenAIConfig `yaml:"openai" env:"OPENAI"`
}

// TranscriptionConfig 语音识别配置
type TranscriptionConfig struct {
	// 提供者: openai, deepgram
	Provider string `yaml:"provider" env:"PROVIDER"`
	// OpenAI Whisper
	OpenAI speech.OpenAISTTConfig `yaml:"openai" env:"OPENAI"`
	// Deepgram
	Deepgram speech.DeepgramConfig `yaml:"deepgram" env:"DEEPGRAM"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 设备偏好缓存时间
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 时为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	// 连接池
	Pool database.PoolConfig `yaml:"pool" env:"POOL"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 连接串
	URI string `yaml:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// 连接与 Ping 超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// AuthConfig 设备 JWT 鉴权配置
type AuthConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HMAC 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// 期望的签发方，留空不校验
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 期望的受众，留空不校验
	Audience string `yaml:"audience" env:"AUDIENCE"`
	// 允许的时钟偏差
	Leeway time.Duration `yaml:"leeway" env:"LEEWAY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error（支持热更新）
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

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, errors.New("invalid HTTP port"))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, errors.New("invalid metrics port"))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("tls_cert_file and tls_key_file must be set together"))
	}

	if c.Pipeline.MinConfidence < 0 || c.Pipeline.MinConfidence > 1 {
		errs = append(errs, errors.New("pipeline.min_confidence must be between 0 and 1"))
	}
	if c.Pipeline.ChunkThreshold < 0 {
		errs = append(errs, errors.New("pipeline.chunk_threshold must not be negative"))
	}
	if c.Synthesis.Link.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("synthesis.link.max_reconnect_attempts must not be negative"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Synthesis.Fallback)) {
	case "", "none", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown synthesis fallback %q", c.Synthesis.Fallback))
	}
	if s := c.Synthesis.OpenAI.Speed; s != 0 && (s < 0.25 || s > 4) {
		errs = append(errs, fmt.Errorf("synthesis.openai.speed must be in [0.25,4], got %v", s))
	}
	if t := c.LLM.OpenAI.Temperature; t < 0 || t > 2 {
		errs = append(errs, errors.New("llm.openai.temperature must be between 0 and 2"))
	}

	switch strings.ToLower(c.Transcription.Provider) {
	case "openai", "deepgram":
	default:
		errs = append(errs, fmt.Errorf("unknown transcription provider %q", c.Transcription.Provider))
	}
	for _, p := range c.Moderation.Providers {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "openai", "keyword", "none":
		default:
			errs = append(errs, fmt.Errorf("unknown moderation provider %q", p))
		}
	}
	if t := c.Moderation.OpenAI.ScoreThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("moderation.openai.score_threshold must be in [0,1], got %v", t))
	}

	for _, b := range c.EventLog.Backends {
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "gorm", "sql", "database":
			if !c.Database.Enabled {
				errs = append(errs, fmt.Errorf("eventlog backend %q requires database.enabled", b))
			}
		case "redis":
			if !c.Redis.Enabled {
				errs = append(errs, fmt.Errorf("eventlog backend %q requires redis.enabled", b))
			}
		case "mongo", "mongodb":
			if !c.Mongo.Enabled {
				errs = append(errs, fmt.Errorf("eventlog backend %q requires mongo.enabled", b))
			}
		}
	}

	if c.Database.Enabled {
		if err := c.Database.Pool.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("database.pool: %w", err))
		}
		if c.Database.DSN() == "" {
			errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
		}
	}
	if c.Auth.Enabled && len(c.Auth.Secret) < 16 {
		errs = append(errs, errors.New("auth.secret must be at least 16 bytes when auth is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}

// DSN 返回 GORM 使用的数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite", "sqlite3":
		return d.Name
	default:
		return ""
	}
}
