package speech

import "time"

// OpenAISTTConfig配置了OpenAI Whisper STT供应商.
type OpenAISTTConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"` // whisper-1
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// DeepgramConfig配置了 Deepgram STT 供应商.
type DeepgramConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"` // nova-2
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// ElevenLabsConfig 配置 ElevenLabs multi-stream-input 流式合成.
type ElevenLabsConfig struct {
	APIKey            string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL           string        `json:"base_url" yaml:"base_url" env:"BASE_URL"` // wss://api.elevenlabs.io
	InactivityTimeout time.Duration `json:"inactivity_timeout" yaml:"inactivity_timeout" env:"INACTIVITY_TIMEOUT"`
	MaxMessageBytes   int64         `json:"max_message_bytes" yaml:"max_message_bytes" env:"MAX_MESSAGE_BYTES"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// OpenAITTSConfig 配置 OpenAI 一次性合成，作为 ElevenLabs 不可用时的备用通道.
type OpenAITTSConfig struct {
	APIKey        string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL       string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model         string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"` // tts-1
	Voice         string        `json:"voice,omitempty" yaml:"voice,omitempty" env:"VOICE"` // alloy
	Speed         float64       `json:"speed,omitempty" yaml:"speed,omitempty" env:"SPEED"`
	Timeout       time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
	FrameDuration time.Duration `json:"frame_duration,omitempty" yaml:"frame_duration,omitempty" env:"FRAME_DURATION"`
	// MaxAudioKB 单次合成结果上限
	MaxAudioKB int64 `json:"max_audio_kb,omitempty" yaml:"max_audio_kb,omitempty" env:"MAX_AUDIO_KB"`
}

// MaxAudioBytes 返回单次合成结果的字节上限
func (c OpenAITTSConfig) MaxAudioBytes() int64 {
	if c.MaxAudioKB <= 0 {
		return DefaultOpenAITTSConfig().MaxAudioKB << 10
	}
	return c.MaxAudioKB << 10
}

// 默认 OpenAISTTConfig 返回默认 OpenAI STT 配置 。
func DefaultOpenAISTTConfig() OpenAISTTConfig {
	return OpenAISTTConfig{
		BaseURL: "https://api.openai.com",
		Model:   "whisper-1",
		Timeout: 8 * time.Second,
	}
}

// 默认 DepgramConfig 返回默认 Depgram 配置 。
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		BaseURL: "https://api.deepgram.com",
		Model:   "nova-2",
		Timeout: 8 * time.Second,
	}
}

// DefaultElevenLabsConfig 返回默认的 ElevenLabs 流式配置 。
func DefaultElevenLabsConfig() ElevenLabsConfig {
	return ElevenLabsConfig{
		BaseURL:           "wss://api.elevenlabs.io",
		InactivityTimeout: 180 * time.Second,
		MaxMessageBytes:   4 << 20,
		WriteTimeout:      5 * time.Second,
	}
}

// DefaultOpenAITTSConfig 返回默认 OpenAI TTS 配置。回复很短，tts-1 的延迟优先。
func DefaultOpenAITTSConfig() OpenAITTSConfig {
	return OpenAITTSConfig{
		BaseURL:       "https://api.openai.com",
		Model:         "tts-1",
		Voice:         "alloy",
		Timeout:       15 * time.Second,
		FrameDuration: 100 * time.Millisecond,
		MaxAudioKB:    4 << 10,
	}
}
