package moderation

import "time"

// OpenAIConfig OpenAI Moderation API 配置
type OpenAIConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`

	// ScoreThreshold 任一类别得分达到该值即拦截，即使接口未标记 flagged。
	// 0 表示只看 flagged。
	ScoreThreshold float64 `json:"score_threshold,omitempty" yaml:"score_threshold,omitempty" env:"SCORE_THRESHOLD"`
}

// DefaultOpenAIConfig 返回默认配置。审核在回合关键路径上，超时较短；
// 面向儿童，阈值比接口自身的 flagged 判定更严格。
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:        "https://api.openai.com/v1",
		Model:          "omni-moderation-latest",
		Timeout:        5 * time.Second,
		ScoreThreshold: 0.4,
	}
}
