package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/session"
	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 📡 设备线协议
// =============================================================================

// FrameType JSON 帧的 type 字段
type FrameType string

const (
	// 入站
	FrameControl FrameType = "control"
	FrameText    FrameType = "text"
	FramePing    FrameType = "ping"
	FrameAudio   FrameType = "audio"

	// 出站
	FrameConnection      FrameType = "connection"
	FramePong            FrameType = "pong"
	FrameControlResponse FrameType = "control_response"
	FrameTranscript      FrameType = "transcript"
	FrameTerminated      FrameType = "terminated"
	FrameError           FrameType = "error"
)

// frameBinaryAudio 二进制音频帧的指标标签
const frameBinaryAudio = "binary_audio"

// InboundFrame 设备发来的 JSON 帧
type InboundFrame struct {
	Type    FrameType `json:"type"`
	Command string    `json:"command,omitempty"`
	Value   string    `json:"value,omitempty"`
	Text    string    `json:"text,omitempty"`
	Payload string    `json:"payload,omitempty"`
}

// OutboundFrame 下发给设备的 JSON 帧，按 Type 只填对应字段
type OutboundFrame struct {
	Type      FrameType `json:"type"`
	Status    string    `json:"status,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Format    string    `json:"format,omitempty"`
	Command   string    `json:"command,omitempty"`
	Text      string    `json:"text,omitempty"`
	Reply     string    `json:"reply,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	Code      string    `json:"code,omitempty"`
}

// DecodeInbound 解析入站 JSON 帧
func DecodeInbound(data []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return InboundFrame{}, types.NewError(types.ErrInvalidFrame, "frame is not valid JSON").WithCause(err)
	}
	f.Type = FrameType(strings.ToLower(strings.TrimSpace(string(f.Type))))
	if f.Type == "" {
		return InboundFrame{}, types.NewError(types.ErrInvalidFrame, "frame type is required")
	}
	return f, nil
}

// DecodeAudioPayload 解码 base64 音频负载
func DecodeAudioPayload(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidFrame, "audio payload is not valid base64").WithCause(err)
	}
	return data, nil
}

func welcomeFrame(sessionID string, format audio.Format) OutboundFrame {
	return OutboundFrame{
		Type:      FrameConnection,
		Status:    "connected",
		SessionID: sessionID,
		Format:    format.String(),
	}
}

func audioFrame(chunk audio.Chunk, format audio.Format) OutboundFrame {
	return OutboundFrame{
		Type:    FrameAudio,
		Payload: base64.StdEncoding.EncodeToString(chunk.Data),
		Format:  format.String(),
	}
}

func eventFrame(ev session.Event) OutboundFrame {
	switch ev.Type {
	case session.EventControlResponse:
		return OutboundFrame{Type: FrameControlResponse, Command: ev.Command, Status: ev.Status}
	case session.EventTranscript:
		return OutboundFrame{Type: FrameTranscript, Text: ev.Text, Reply: ev.Reply}
	case session.EventTerminated:
		return OutboundFrame{Type: FrameTerminated, Reason: ev.Reason, Message: ev.Message}
	default:
		return OutboundFrame{Type: FrameType(ev.Type), Status: ev.Status, Message: ev.Message}
	}
}

func errorFrame(err error) OutboundFrame {
	code := types.GetErrorCode(err)
	if code == "" {
		code = types.ErrInternalError
	}
	msg := err.Error()
	var te *types.Error
	if errors.As(err, &te) {
		msg = te.Message
	}
	return OutboundFrame{Type: FrameError, Code: string(code), Message: msg}
}

// encodeFrame 把帧编码进 buf，去掉 json.Encoder 追加的换行
func encodeFrame(buf *bytes.Buffer, f OutboundFrame) ([]byte, error) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
