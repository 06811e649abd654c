package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/teddyvoice/internal/tlsutil"
	"github.com/BaSui01/teddyvoice/types"
	"go.uber.org/zap"
)

const openAIProviderName = "openai"

// OpenAIProvider 调用 OpenAI 兼容的 /v1/chat/completions 接口
type OpenAIProvider struct {
	cfg          OpenAIConfig
	systemPrompt string
	client       *http.Client
	logger       *zap.Logger
}

// NewOpenAIProvider 创建 OpenAI 兼容提供者。systemPrompt 为空时使用 DefaultSystemPrompt。
func NewOpenAIProvider(cfg OpenAIConfig, systemPrompt string, logger *zap.Logger) *OpenAIProvider {
	defaults := DefaultOpenAIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		cfg:          cfg,
		systemPrompt: systemPrompt,
		client:       tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:       logger.With(zap.String("component", "llm_openai")),
	}
}

// Name 实现 Provider
func (p *OpenAIProvider) Name() string { return openAIProviderName }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate 实现 Provider。消息顺序：系统提示词 → history → newMessage。
func (p *OpenAIProvider) Generate(ctx context.Context, history []types.Message, newMessage string) (string, error) {
	body := chatRequest{
		Model:       p.cfg.Model,
		Messages:    buildMessages(p.systemPrompt, history, newMessage),
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", types.NewTransientError(openAIProviderName, "chat request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", types.ProviderHTTPError(openAIProviderName, resp.StatusCode, readErrorMessage(resp.Body))
	}

	var cResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", types.NewTransientError(openAIProviderName, "failed to decode chat response", err)
	}
	if len(cResp.Choices) == 0 {
		return "", types.NewPermanentError(openAIProviderName, "empty choices", nil)
	}

	reply := strings.TrimSpace(cResp.Choices[0].Message.Content)
	p.logger.Debug("chat completion",
		zap.Int("prompt_tokens", cResp.Usage.PromptTokens),
		zap.Int("completion_tokens", cResp.Usage.CompletionTokens),
		zap.String("finish_reason", cResp.Choices[0].FinishReason),
	)
	return reply, nil
}

func buildMessages(systemPrompt string, history []types.Message, newMessage string) []chatMessage {
	msgs := make([]chatMessage, 0, len(history)+2)
	msgs = append(msgs, chatMessage{Role: string(types.RoleSystem), Content: systemPrompt})
	for _, m := range history {
		if m.Role == types.RoleSystem {
			continue
		}
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, chatMessage{Role: string(types.RoleUser), Content: newMessage})
	return msgs
}

// readErrorMessage 尝试解析 {"error":{"message":..}}，失败则回退到原始文本
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}
