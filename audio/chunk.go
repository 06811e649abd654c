package audio

import (
	"fmt"
	"time"
)

// Chunk 一段带采集时间戳的不可变音频字节
type Chunk struct {
	Data       []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewChunk copies data so the caller may reuse its slice.
func NewChunk(data []byte, capturedAt time.Time) Chunk {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Chunk{Data: cp, CapturedAt: capturedAt}
}

// Len returns the chunk length in bytes.
func (c Chunk) Len() int { return len(c.Data) }

// Format 描述 PCM 音频格式
type Format struct {
	Encoding   string `yaml:"encoding" json:"encoding" env:"ENCODING"` // pcm_s16le, mp3, opus
	SampleRate int    `yaml:"sample_rate" json:"sample_rate" env:"SAMPLE_RATE"`
	Channels   int    `yaml:"channels" json:"channels" env:"CHANNELS"`
}

// DefaultInputFormat 设备上行默认格式：16kHz 单声道 16bit PCM
func DefaultInputFormat() Format {
	return Format{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1}
}

// DefaultOutputFormat 合成下行默认格式
func DefaultOutputFormat() Format {
	return Format{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1}
}

const (
	EncodingPCM16 = "pcm_s16le"
	EncodingMP3   = "mp3"
)

// String renders the format the way it is advertised to devices, e.g. "pcm_16000".
func (f Format) String() string {
	if f.Encoding == EncodingPCM16 {
		return fmt.Sprintf("pcm_%d", f.SampleRate)
	}
	if f.SampleRate > 0 {
		return fmt.Sprintf("%s_%d", f.Encoding, f.SampleRate)
	}
	return f.Encoding
}

// BytesPerSecond returns the raw PCM byte rate, or 0 for compressed encodings.
func (f Format) BytesPerSecond() int {
	if f.Encoding != EncodingPCM16 {
		return 0
	}
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return f.SampleRate * ch * 2
}
