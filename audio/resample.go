package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample 把 16bit PCM 从 from 的采样率转换到 to 的采样率，声道数必须一致。
// 采样率相同时原样返回。整段一次性处理，适合非流式的合成结果。
func Resample(pcm []byte, from, to Format) ([]byte, error) {
	if from.Encoding != EncodingPCM16 || to.Encoding != EncodingPCM16 {
		return nil, fmt.Errorf("resample: only %s is supported", EncodingPCM16)
	}
	if from.SampleRate <= 0 || to.SampleRate <= 0 {
		return nil, fmt.Errorf("resample: invalid sample rate %d -> %d", from.SampleRate, to.SampleRate)
	}
	channels := max(from.Channels, 1)
	if max(to.Channels, 1) != channels {
		return nil, fmt.Errorf("resample: channel conversion %d -> %d is not supported", from.Channels, to.Channels)
	}
	if from.SampleRate == to.SampleRate || len(pcm) < 2 {
		return pcm, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from.SampleRate),
		OutputRate: float64(to.SampleRate),
		Channels:   channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	// 按整帧截断，残留的半个采样直接丢弃
	frames := len(pcm) / (2 * channels)
	input := make([]float64, frames*channels)
	for i := range input {
		s := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		input[i] = float64(s) / 32768.0
	}

	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, v := range output {
		var s int16
		switch {
		case v >= 1.0:
			s = 32767
		case v <= -1.0:
			s = -32768
		default:
			s = int16(v * 32767.0)
		}
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out, nil
}

// SplitFrames 按 frameBytes 切分音频，最后一帧可能较短
func SplitFrames(data []byte, frameBytes int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if frameBytes <= 0 || frameBytes >= len(data) {
		return [][]byte{data}
	}
	frames := make([][]byte, 0, (len(data)+frameBytes-1)/frameBytes)
	for start := 0; start < len(data); start += frameBytes {
		frames = append(frames, data[start:min(start+frameBytes, len(data))])
	}
	return frames
}
