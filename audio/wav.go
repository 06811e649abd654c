package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeWAV 为 16bit PCM 数据加上 RIFF/WAVE 文件头，供需要文件格式的转写服务使用
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if f.Encoding != EncodingPCM16 {
		return nil, fmt.Errorf("wav: unsupported encoding %q", f.Encoding)
	}
	if f.SampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid sample rate %d", f.SampleRate)
	}
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}

	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := f.SampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}
