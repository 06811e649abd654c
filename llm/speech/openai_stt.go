package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/internal/tlsutil"
	"github.com/BaSui01/teddyvoice/types"
)

const whisperProviderName = "openai-stt"

// OpenAISTTProvider使用OpenAI Whisper API执行STT.
type OpenAISTTProvider struct {
	cfg    OpenAISTTConfig
	client *http.Client
}

// NewOpenAISTTProvider 创建新的 OpenAI STT 提供者.
func NewOpenAISTTProvider(cfg OpenAISTTConfig) *OpenAISTTProvider {
	defaults := DefaultOpenAISTTConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	return &OpenAISTTProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

func (p *OpenAISTTProvider) Name() string { return whisperProviderName }

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Segments []struct {
		Text         string  `json:"text"`
		AvgLogprob   float64 `json:"avg_logprob"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments,omitempty"`
}

// Transcribe 将语音转换为文本。PCM 输入会先封装为 WAV。
func (p *OpenAISTTProvider) Transcribe(ctx context.Context, pcm []byte, format audio.Format) (*Transcription, error) {
	if len(pcm) == 0 {
		return nil, types.NewPermanentError(whisperProviderName, "audio input is required", nil)
	}

	filename, data, err := fileForUpload(pcm, format)
	if err != nil {
		return nil, types.NewPermanentError(whisperProviderName, "unsupported audio format", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to copy audio: %w", err)
	}
	_ = writer.WriteField("model", p.cfg.Model)
	_ = writer.WriteField("response_format", "verbose_json")
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/audio/transcriptions",
		&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.NewTransientError(whisperProviderName, "whisper request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, types.ProviderHTTPError(whisperProviderName, resp.StatusCode, string(errBody))
	}

	var wResp whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wResp); err != nil {
		return nil, types.NewTransientError(whisperProviderName, "failed to decode whisper response", err)
	}

	text := strings.TrimSpace(wResp.Text)
	return &Transcription{
		Text:       text,
		Confidence: whisperConfidence(text, wResp),
		Language:   wResp.Language,
		Duration:   time.Duration(wResp.Duration * float64(time.Second)),
	}, nil
}

// whisperConfidence Whisper 不直接给出置信度，用各片段
// exp(avg_logprob) * (1 - no_speech_prob) 的平均值近似。
func whisperConfidence(text string, r whisperResponse) float64 {
	if text == "" {
		return 0
	}
	if len(r.Segments) == 0 {
		return 1
	}
	sum := 0.0
	for _, s := range r.Segments {
		sum += math.Exp(s.AvgLogprob) * (1 - s.NoSpeechProb)
	}
	return clamp01(sum / float64(len(r.Segments)))
}

func fileForUpload(data []byte, format audio.Format) (string, []byte, error) {
	if format.Encoding == "" {
		format = audio.DefaultInputFormat()
	}
	switch format.Encoding {
	case audio.EncodingPCM16:
		if format.SampleRate <= 0 {
			format.SampleRate = audio.DefaultInputFormat().SampleRate
		}
		wav, err := audio.EncodeWAV(data, format)
		if err != nil {
			return "", nil, err
		}
		return "audio.wav", wav, nil
	case audio.EncodingMP3:
		return "audio.mp3", data, nil
	default:
		return "", nil, fmt.Errorf("encoding %q", format.Encoding)
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
