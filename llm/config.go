package llm

import "time"

// DefaultSystemPrompt 儿童陪伴玩具的默认系统提示词
const DefaultSystemPrompt = "You are Teddy, a friendly and patient talking toy for young children. " +
	"Answer in one or two short, simple sentences. Be kind, encouraging and age appropriate. " +
	"Never ask for personal information and never discuss frightening or adult topics."

// OpenAIConfig OpenAI 兼容 Chat Completions 配置
type OpenAIConfig struct {
	APIKey      string        `yaml:"api_key" json:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" json:"model" env:"MODEL"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens" env:"MAX_TOKENS"`
	Temperature float64       `yaml:"temperature" json:"temperature" env:"TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

// DefaultOpenAIConfig 返回默认配置：回复短（150 token），温度 0.7
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:     "https://api.openai.com",
		Model:       "gpt-4o-mini",
		MaxTokens:   150,
		Temperature: 0.7,
		Timeout:     8 * time.Second,
	}
}
