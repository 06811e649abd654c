// Package speech 定义对话回合使用的语音转写与流式语音合成接口.
package speech

import (
	"context"
	"time"

	"github.com/BaSui01/teddyvoice/audio"
)

// ============================================================
// 语音对文本( STT)
// ============================================================

// Transcription 一次转写结果，Confidence 取值 [0,1]
type Transcription struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Language   string        `json:"language,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Transcriber 把一段缓冲的音频转写为文本。
// 失败时返回 types.Error：TRANSIENT_PROVIDER 可重试，PERMANENT_PROVIDER 不可重试。
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, format audio.Format) (*Transcription, error)
}

// ============================================================
// 流式文字对语言( TTS)
// ============================================================

// VoiceSettings 声音参数
type VoiceSettings struct {
	Stability       float64 `json:"stability" yaml:"stability" env:"STABILITY"`
	SimilarityBoost float64 `json:"similarity_boost" yaml:"similarity_boost" env:"SIMILARITY_BOOST"`
}

// StreamConfig 建立合成连接时发送的配置：声音、模型与输出格式
type StreamConfig struct {
	VoiceID       string        `json:"voice_id" yaml:"voice_id" env:"VOICE_ID"`
	ModelID       string        `json:"model_id" yaml:"model_id" env:"MODEL_ID"`
	OutputFormat  audio.Format  `json:"output_format" yaml:"output_format" env:"OUTPUT_FORMAT"`
	VoiceSettings VoiceSettings `json:"voice_settings" yaml:"voice_settings" env:"VOICE_SETTINGS"`
}

// SynthesisEvent 合成服务推送的一帧。
// Final 表示该 ContextID 的合成已结束；Err 非空表示服务端拒绝了该上下文。
type SynthesisEvent struct {
	ContextID string
	Audio     []byte
	Final     bool
	Err       string
}

// SynthesisStream 一条持久的流式合成连接。
// SendText 可与 Recv 并发调用；Recv 只允许一个读取方。
type SynthesisStream interface {
	// SendText 以 contextID 为一轮合成提交文本并立即 flush
	SendText(ctx context.Context, contextID, text string) error
	// Recv 阻塞直到收到下一帧或连接断开
	Recv(ctx context.Context) (SynthesisEvent, error)
	// Close 关闭连接，可重复调用
	Close() error
}

// StreamDialer 建立合成连接并发送初始配置帧
type StreamDialer interface {
	Dial(ctx context.Context, cfg StreamConfig) (SynthesisStream, error)
}

// VoiceResolver 把声音名称解析为合成服务的 voice id
type VoiceResolver interface {
	ResolveVoice(ctx context.Context, nameOrID string) (string, error)
}
