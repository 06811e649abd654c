// 默认配置测试。
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotZero(t, cfg.Server.HTTPPort)
	assert.NotEmpty(t, cfg.Gateway.Path)
	assert.NotZero(t, cfg.Session.IdleTimeout)
	assert.NotZero(t, cfg.Pipeline.ChunkThreshold)
	assert.NotEmpty(t, cfg.Synthesis.ElevenLabs.BaseURL)
	assert.Equal(t, "openai", cfg.Synthesis.Fallback)
	assert.Equal(t, "tts-1", cfg.Synthesis.OpenAI.Model)
	assert.NotEmpty(t, cfg.LLM.SystemPrompt)
	assert.NotEmpty(t, cfg.EventLog.Backends)
	assert.NotEmpty(t, cfg.Log.Level)
	assert.NotEmpty(t, cfg.Telemetry.ServiceName)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 10*time.Second, cfg.ReadHeaderTimeout)
	assert.Zero(t, cfg.ReadTimeout, "websocket connections are long lived")
	assert.Zero(t, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Positive(t, cfg.RateLimitRPS)
	assert.GreaterOrEqual(t, cfg.RateLimitBurst, 1)
}

func TestDefaultModerationConfig(t *testing.T) {
	cfg := DefaultModerationConfig()
	assert.Equal(t, []string{"keyword", "openai"}, cfg.Providers)
	assert.Empty(t, cfg.Blocklist)
	assert.NotEmpty(t, cfg.OpenAI.Model)
}

func TestDefaultTranscriptionConfig(t *testing.T) {
	cfg := DefaultTranscriptionConfig()
	assert.Equal(t, "openai", cfg.Provider)
	assert.NotEmpty(t, cfg.OpenAI.Model)
	assert.NotEmpty(t, cfg.Deepgram.Model)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 24*time.Hour, cfg.DefaultTTL)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "teddyvoice.db", cfg.DSN())
	assert.True(t, cfg.AutoMigrate)
	assert.NoError(t, cfg.Pool.Validate())
}

func TestDefaultMongoConfig(t *testing.T) {
	cfg := DefaultMongoConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "mongodb://localhost:27017", cfg.URI)
	assert.Equal(t, "teddyvoice", cfg.Database)
}

func TestDefaultAuthConfig(t *testing.T) {
	cfg := DefaultAuthConfig()
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.Secret)
	assert.Equal(t, "teddyvoice", cfg.Issuer)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "teddyvoice", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}
