// =============================================================================
// 📦 teddyvoice 默认配置
// =============================================================================
// 提供所有配置项的合理默认值，单机开发无需任何外部依赖即可启动
// =============================================================================
package config

import (
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

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Gateway:       gateway.DefaultConfig(),
		Session:       session.DefaultRegistryConfig(),
		Pipeline:      session.DefaultPipelineConfig(),
		Synthesis:     DefaultSynthesisConfig(),
		LLM:           DefaultLLMConfig(),
		Moderation:    DefaultModerationConfig(),
		Transcription: DefaultTranscriptionConfig(),
		EventLog:      eventlog.DefaultConfig(),
		Redis:         DefaultRedisConfig(),
		Database:      DefaultDatabaseConfig(),
		Mongo:         DefaultMongoConfig(),
		Auth:          DefaultAuthConfig(),
		Log:           DefaultLogConfig(),
		Telemetry:     DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:          8080,
		MetricsPort:       9091,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		RateLimitRPS:      20,
		RateLimitBurst:    40,
	}
}

// DefaultSynthesisConfig 返回默认合成配置
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		Link:       synthesis.DefaultConfig(),
		ElevenLabs: speech.DefaultElevenLabsConfig(),
		Fallback:   "openai",
		OpenAI:     speech.DefaultOpenAITTSConfig(),
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		SystemPrompt: llm.DefaultSystemPrompt,
		OpenAI:       llm.DefaultOpenAIConfig(),
	}
}

// DefaultModerationConfig 返回默认审核配置：先本地关键词，再调用 OpenAI
func DefaultModerationConfig() ModerationConfig {
	return ModerationConfig{
		Providers: []string{"keyword", "openai"},
		OpenAI:    moderation.DefaultOpenAIConfig(),
	}
}

// DefaultTranscriptionConfig 返回默认语音识别配置
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		Provider: "openai",
		OpenAI:   speech.DefaultOpenAISTTConfig(),
		Deepgram: speech.DefaultDeepgramConfig(),
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:             false,
		Addr:                "localhost:6379",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		DefaultTTL:          24 * time.Hour,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置（本地 sqlite 文件）
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:     true,
		Driver:      "sqlite",
		Host:        "localhost",
		Port:        5432,
		User:        "teddyvoice",
		Name:        "teddyvoice.db",
		SSLMode:     "disable",
		AutoMigrate: true,
		Pool:        database.DefaultPoolConfig(),
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Enabled:        false,
		URI:            "mongodb://localhost:27017",
		Database:       "teddyvoice",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultAuthConfig 返回默认鉴权配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled: false,
		Issuer:  "teddyvoice",
		Leeway:  30 * time.Second,
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
		ServiceName:  "teddyvoice",
		SampleRate:   0.1,
	}
}
