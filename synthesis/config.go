package synthesis

import (
	"time"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/llm/speech"
)

// Config 合成连接配置
type Config struct {
	// Voice 初始配置帧发送的声音、模型与输出格式
	Voice speech.StreamConfig `yaml:"voice" json:"voice" env:"VOICE"`
	// BaseDelay 第一次重连等待时间，第 N 次为 BaseDelay * 2^(N-1)
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay" env:"BASE_DELAY"`
	// MaxReconnectAttempts 连续失败上限，达到后进入终止状态
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts" env:"MAX_RECONNECT_ATTEMPTS"`
	// DialTimeout 单次建连超时
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// DefaultConfig 返回默认合成连接配置
func DefaultConfig() Config {
	return Config{
		Voice: speech.StreamConfig{
			VoiceID:      "21m00Tcm4TlvDq8ikWAM",
			ModelID:      "eleven_multilingual_v2",
			OutputFormat: audio.DefaultOutputFormat(),
			VoiceSettings: speech.VoiceSettings{
				Stability:       0.5,
				SimilarityBoost: 0.8,
			},
		},
		BaseDelay:            500 * time.Millisecond,
		MaxReconnectAttempts: 5,
		DialTimeout:          5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.Voice.VoiceID == "" {
		c.Voice.VoiceID = d.Voice.VoiceID
	}
	if c.Voice.ModelID == "" {
		c.Voice.ModelID = d.Voice.ModelID
	}
	if c.Voice.OutputFormat.Encoding == "" {
		c.Voice.OutputFormat = d.Voice.OutputFormat
	}
	return c
}
