package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/teddyvoice/internal/tlsutil"
	"github.com/BaSui01/teddyvoice/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const elevenLabsProviderName = "elevenlabs"

// ElevenLabsDialer 通过 multi-stream-input WebSocket 建立流式合成连接。
// 每轮回复对应一个 context_id，多轮回复复用同一条连接。
type ElevenLabsDialer struct {
	cfg    ElevenLabsConfig
	client *http.Client
	logger *zap.Logger
}

// NewElevenLabsDialer 创建 ElevenLabs 拨号器
func NewElevenLabsDialer(cfg ElevenLabsConfig, logger *zap.Logger) *ElevenLabsDialer {
	defaults := DefaultElevenLabsConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = defaults.InactivityTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaults.MaxMessageBytes
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElevenLabsDialer{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(10 * time.Second),
		logger: logger.With(zap.String("component", "elevenlabs")),
	}
}

// Dial 实现 StreamDialer：握手后立即发送声音参数初始化帧
func (d *ElevenLabsDialer) Dial(ctx context.Context, cfg StreamConfig) (SynthesisStream, error) {
	if strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, types.NewPermanentError(elevenLabsProviderName, "voice id is required", nil)
	}
	wsURL, err := d.buildURL(cfg)
	if err != nil {
		return nil, types.NewPermanentError(elevenLabsProviderName, "invalid base url", err)
	}

	header := http.Header{}
	header.Set("xi-api-key", d.cfg.APIKey)
	opts := &websocket.DialOptions{
		HTTPClient: tlsutil.WebSocketHTTPClient(),
		HTTPHeader: header,
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, types.ProviderHTTPError(elevenLabsProviderName, resp.StatusCode, err.Error())
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.NewTransientError(elevenLabsProviderName, "dial failed", err)
	}
	conn.SetReadLimit(d.cfg.MaxMessageBytes)

	s := &elevenLabsStream{
		conn:         conn,
		writeTimeout: d.cfg.WriteTimeout,
	}

	if err := s.writeJSON(ctx, map[string]any{
		"text": " ",
		"voice_settings": map[string]float64{
			"stability":        cfg.VoiceSettings.Stability,
			"similarity_boost": cfg.VoiceSettings.SimilarityBoost,
		},
	}); err != nil {
		_ = s.Close()
		return nil, err
	}

	d.logger.Debug("synthesis stream connected",
		zap.String("voice_id", cfg.VoiceID),
		zap.String("output_format", cfg.OutputFormat.String()),
	)
	return s, nil
}

func (d *ElevenLabsDialer) buildURL(cfg StreamConfig) (string, error) {
	u, err := url.Parse(strings.TrimRight(d.cfg.BaseURL, "/"))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/text-to-speech/" + cfg.VoiceID + "/multi-stream-input"

	q := u.Query()
	if cfg.ModelID != "" {
		q.Set("model_id", cfg.ModelID)
	}
	if f := cfg.OutputFormat.String(); f != "" {
		q.Set("output_format", f)
	}
	q.Set("inactivity_timeout", strconv.Itoa(int(d.cfg.InactivityTimeout/time.Second)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// =============================================================================
// 🔌 连接
// =============================================================================

type elevenLabsStream struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	// 一轮合成的三条消息必须连续写出
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// SendText 依次发送：初始化上下文、文本并 flush、关闭上下文
func (s *elevenLabsStream) SendText(ctx context.Context, contextID, text string) error {
	contextID = strings.TrimSpace(contextID)
	if contextID == "" {
		return types.NewPermanentError(elevenLabsProviderName, "context id is required", nil)
	}
	if strings.TrimSpace(text) != "" && !strings.HasSuffix(text, " ") {
		text += " "
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	msgs := []map[string]any{
		{"text": " ", "context_id": contextID},
		{"text": text, "context_id": contextID, "flush": true},
		{"context_id": contextID, "close_context": true},
	}
	for _, m := range msgs {
		if err := s.writeLocked(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Recv 读取下一帧；没有音频且不是结束标记的消息被跳过
func (s *elevenLabsStream) Recv(ctx context.Context) (SynthesisEvent, error) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return SynthesisEvent{}, types.NewError(types.ErrConnectionLost, "synthesis stream read failed").
				WithProvider(elevenLabsProviderName).
				WithCause(err)
		}

		var msg map[string]json.RawMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		ev := SynthesisEvent{
			ContextID: decodeString(msg["contextId"]),
			Final:     decodeBool(msg["isFinal"]) || decodeBool(msg["is_final"]),
		}
		if ev.ContextID == "" {
			ev.ContextID = decodeString(msg["context_id"])
		}
		if serverErr := decodeString(msg["error"]); serverErr != "" {
			ev.Err = serverErr
			ev.Final = true
			return ev, nil
		}
		if b64 := decodeString(msg["audio"]); b64 != "" {
			audio, err := decodeBase64Any(b64)
			if err == nil {
				ev.Audio = audio
			}
		}
		if len(ev.Audio) == 0 && !ev.Final {
			continue
		}
		return ev, nil
	}
}

// Close 关闭连接，可重复调用
func (s *elevenLabsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}

func (s *elevenLabsStream) writeJSON(ctx context.Context, payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked(ctx, payload)
}

func (s *elevenLabsStream) writeLocked(ctx context.Context, payload any) error {
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, s.conn, payload); err != nil {
		return types.NewError(types.ErrConnectionLost, fmt.Sprintf("synthesis stream write failed: %v", err)).
			WithProvider(elevenLabsProviderName).
			WithCause(err)
	}
	return nil
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func decodeBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var out bool
	if err := json.Unmarshal(raw, &out); err != nil {
		return false
	}
	return out
}

// decodeBase64Any ElevenLabs 使用标准 base64，但可能省略填充
func decodeBase64Any(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("invalid base64")
}
