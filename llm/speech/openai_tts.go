package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/internal/tlsutil"
	"github.com/BaSui01/teddyvoice/types"
)

const openAITTSProviderName = "openai-tts"

// OpenAI 的 pcm 输出固定为 24kHz 单声道 16bit
var openAIPCMFormat = audio.Format{Encoding: audio.EncodingPCM16, SampleRate: 24000, Channels: 1}

// OpenAITTSDialer 用 OpenAI /v1/audio/speech 模拟一条合成连接。
// 每次 SendText 发起一次完整请求，结果切帧后按 contextID 推送并以 Final 结束。
// 声音使用自身配置，StreamConfig.VoiceID 属于 ElevenLabs 命名空间，这里忽略。
type OpenAITTSDialer struct {
	cfg    OpenAITTSConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAITTSDialer 创建 OpenAI 合成拨号器
func NewOpenAITTSDialer(cfg OpenAITTSConfig, logger *zap.Logger) *OpenAITTSDialer {
	defaults := DefaultOpenAITTSConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Voice == "" {
		cfg.Voice = defaults.Voice
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = defaults.FrameDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAITTSDialer{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", openAITTSProviderName)),
	}
}

// Dial 实现 StreamDialer。没有真实连接，只校验凭据与输出格式。
func (d *OpenAITTSDialer) Dial(_ context.Context, cfg StreamConfig) (SynthesisStream, error) {
	if d.cfg.APIKey == "" {
		return nil, types.NewPermanentError(openAITTSProviderName, "api key is not configured", nil)
	}
	out := cfg.OutputFormat
	if out.Encoding == "" {
		out = audio.DefaultOutputFormat()
	}
	if out.Encoding != audio.EncodingPCM16 && out.Encoding != audio.EncodingMP3 {
		return nil, types.NewPermanentError(openAITTSProviderName,
			fmt.Sprintf("output encoding %q is not supported", out.Encoding), nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &openAITTSStream{
		dialer: d,
		output: out,
		events: make(chan SynthesisEvent, 64),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

type openAITTSRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// synthesize 请求一段完整音频并转换为输出格式
func (d *OpenAITTSDialer) synthesize(ctx context.Context, text string, out audio.Format) ([]byte, error) {
	format := "pcm"
	if out.Encoding == audio.EncodingMP3 {
		format = "mp3"
	}
	body := openAITTSRequest{
		Model:          d.cfg.Model,
		Input:          text,
		Voice:          d.cfg.Voice,
		ResponseFormat: format,
	}
	if d.cfg.Speed > 0 {
		body.Speed = d.cfg.Speed
	}

	payload, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(d.cfg.BaseURL, "/")+"/v1/audio/speech",
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.NewTransientError(openAITTSProviderName, "openai tts request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, types.ProviderHTTPError(openAITTSProviderName, resp.StatusCode, string(errBody))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxAudioBytes()))
	if err != nil {
		return nil, types.NewTransientError(openAITTSProviderName, "failed to read audio", err)
	}
	if format == "mp3" {
		return data, nil
	}
	return audio.Resample(data, openAIPCMFormat, out)
}

// =============================================================================
// 🔊 一次性合成流
// =============================================================================

type openAITTSStream struct {
	dialer *OpenAITTSDialer
	output audio.Format
	events chan SynthesisEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// SendText 在后台发起请求并立即返回；失败以 Err 事件结束该 context
func (s *openAITTSStream) SendText(_ context.Context, contextID, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.NewError(types.ErrConnectionLost, "openai tts stream closed")
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		data, err := s.dialer.synthesize(s.ctx, text, s.output)
		if err != nil {
			if s.ctx.Err() == nil {
				s.dialer.logger.Warn("openai tts synthesis failed",
					zap.String("context_id", contextID),
					zap.Error(err))
				s.push(SynthesisEvent{ContextID: contextID, Err: err.Error()})
			}
			return
		}

		frameBytes := s.output.BytesPerSecond() * int(s.dialer.cfg.FrameDuration.Milliseconds()) / 1000
		if s.output.Encoding == audio.EncodingMP3 {
			frameBytes = 0
		}
		for _, frame := range audio.SplitFrames(data, frameBytes) {
			if !s.push(SynthesisEvent{ContextID: contextID, Audio: frame}) {
				return
			}
		}
		s.push(SynthesisEvent{ContextID: contextID, Final: true})
	}()
	return nil
}

func (s *openAITTSStream) push(ev SynthesisEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Recv 实现 SynthesisStream
func (s *openAITTSStream) Recv(ctx context.Context) (SynthesisEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.ctx.Done():
		return SynthesisEvent{}, io.EOF
	case <-ctx.Done():
		return SynthesisEvent{}, ctx.Err()
	}
}

// Close 取消进行中的请求，可重复调用
func (s *openAITTSStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}
