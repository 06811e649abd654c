package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/internal/tlsutil"
	"github.com/BaSui01/teddyvoice/types"
)

const deepgramProviderName = "deepgram"

// DeepgramProvider使用Deepgram API执行STT.
type DeepgramProvider struct {
	cfg    DeepgramConfig
	client *http.Client
}

// NewDeepgramProvider 创建新的 Deepgram STT 提供者.
func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	defaults := DefaultDeepgramConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	return &DeepgramProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

func (p *DeepgramProvider) Name() string { return deepgramProviderName }

type deepgramResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language,omitempty"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe 将语音转换为使用Deepgram的文本。原始 PCM 以 linear16 直接上传。
func (p *DeepgramProvider) Transcribe(ctx context.Context, data []byte, format audio.Format) (*Transcription, error) {
	if len(data) == 0 {
		return nil, types.NewPermanentError(deepgramProviderName, "audio input is required", nil)
	}
	if format.Encoding == "" {
		format = audio.DefaultInputFormat()
	}

	params := url.Values{}
	params.Set("model", p.cfg.Model)
	params.Set("smart_format", "true")
	params.Set("punctuate", "true")
	params.Set("detect_language", "true")

	contentType := "audio/mpeg"
	if format.Encoding == audio.EncodingPCM16 {
		channels := format.Channels
		if channels <= 0 {
			channels = 1
		}
		params.Set("encoding", "linear16")
		params.Set("sample_rate", strconv.Itoa(format.SampleRate))
		params.Set("channels", strconv.Itoa(channels))
		contentType = "application/octet-stream"
	}

	endpoint := fmt.Sprintf("%s/v1/listen?%s", strings.TrimRight(p.cfg.BaseURL, "/"), params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.NewTransientError(deepgramProviderName, "deepgram request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, types.ProviderHTTPError(deepgramProviderName, resp.StatusCode, string(errBody))
	}

	var dResp deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dResp); err != nil {
		return nil, types.NewTransientError(deepgramProviderName, "failed to decode deepgram response", err)
	}

	result := &Transcription{
		Duration: time.Duration(dResp.Metadata.Duration * float64(time.Second)),
	}

	// 从第一个频道提取记录
	if len(dResp.Results.Channels) > 0 {
		ch := dResp.Results.Channels[0]
		result.Language = ch.DetectedLanguage
		if len(ch.Alternatives) > 0 {
			result.Text = strings.TrimSpace(ch.Alternatives[0].Transcript)
			result.Confidence = clamp01(ch.Alternatives[0].Confidence)
		}
	}

	return result, nil
}
