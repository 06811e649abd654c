package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/BaSui01/teddyvoice/internal/tlsutil"
	"github.com/BaSui01/teddyvoice/types"
)

const openAIProviderName = "openai-moderation"

// OpenAIModerator 使用 OpenAI Moderation API 审核文本
type OpenAIModerator struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIModerator 创建 OpenAI 审核器
func NewOpenAIModerator(cfg OpenAIConfig) *OpenAIModerator {
	defaults := DefaultOpenAIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &OpenAIModerator{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

func (p *OpenAIModerator) Name() string { return openAIProviderName }

type openAIModerationRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type openAIModerationResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Check 实现 Moderator。被标记时 Reason 为命中的类别列表。
func (p *OpenAIModerator) Check(ctx context.Context, text string) (Verdict, error) {
	payload, err := json.Marshal(openAIModerationRequest{Model: p.cfg.Model, Input: text})
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to marshal moderation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/moderations", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Verdict{}, err
		}
		return Verdict{}, types.NewTransientError(openAIProviderName, "moderation request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return Verdict{}, types.ProviderHTTPError(openAIProviderName, resp.StatusCode, string(errBody))
	}

	var oResp openAIModerationResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return Verdict{}, types.NewTransientError(openAIProviderName, "failed to decode response", err)
	}

	for _, r := range oResp.Results {
		hits := p.hitCategories(r.Categories, r.CategoryScores)
		if r.Flagged || len(hits) > 0 {
			if len(hits) == 0 {
				return Block("flagged"), nil
			}
			return Block(strings.Join(hits, ",")), nil
		}
	}
	return Allow(), nil
}

// hitCategories 返回被标记或得分达到阈值的类别，按名称排序
func (p *OpenAIModerator) hitCategories(cats map[string]bool, scores map[string]float64) []string {
	seen := make(map[string]struct{})
	for name, hit := range cats {
		if hit {
			seen[name] = struct{}{}
		}
	}
	if p.cfg.ScoreThreshold > 0 {
		for name, score := range scores {
			if score >= p.cfg.ScoreThreshold {
				seen[name] = struct{}{}
			}
		}
	}
	hits := make([]string, 0, len(seen))
	for name := range seen {
		hits = append(hits, name)
	}
	sort.Strings(hits)
	return hits
}
