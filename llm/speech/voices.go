package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/types"
)

type elevenLabsVoice struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

type elevenLabsVoicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// ResolveVoice 查询账号下的声音列表：先按 voice_id 精确匹配，
// 再按名称忽略大小写匹配，都不命中时返回列表中的第一个声音。
func (d *ElevenLabsDialer) ResolveVoice(ctx context.Context, nameOrID string) (string, error) {
	voices, err := d.listVoices(ctx)
	if err != nil {
		return "", err
	}
	if len(voices) == 0 {
		return "", types.NewPermanentError(elevenLabsProviderName, "no voices available", nil)
	}

	want := strings.TrimSpace(nameOrID)
	for _, v := range voices {
		if v.VoiceID == want {
			return v.VoiceID, nil
		}
	}
	for _, v := range voices {
		if strings.EqualFold(v.Name, want) {
			return v.VoiceID, nil
		}
	}
	d.logger.Info("voice not found, using first available voice",
		zap.String("requested", want),
		zap.String("voice_id", voices[0].VoiceID))
	return voices[0].VoiceID, nil
}

func (d *ElevenLabsDialer) listVoices(ctx context.Context) ([]elevenLabsVoice, error) {
	endpoint, err := d.restURL("/v1/voices")
	if err != nil {
		return nil, types.NewPermanentError(elevenLabsProviderName, "invalid base url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", d.cfg.APIKey)

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.NewTransientError(elevenLabsProviderName, "voice listing failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, types.ProviderHTTPError(elevenLabsProviderName, resp.StatusCode, string(body))
	}

	var out elevenLabsVoicesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		return nil, types.NewTransientError(elevenLabsProviderName, "invalid voice listing", err)
	}
	return out.Voices, nil
}

// restURL 由 WebSocket 地址推出同主机的 HTTP 地址
func (d *ElevenLabsDialer) restURL(path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(d.cfg.BaseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss", "":
		u.Scheme = "https"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	return u.String(), nil
}
