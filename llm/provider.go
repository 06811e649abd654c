package llm

import (
	"context"

	"github.com/BaSui01/teddyvoice/types"
)

// Provider 语言模型提供者。
// history 按时间顺序排列，不包含 newMessage。
type Provider interface {
	Name() string
	Generate(ctx context.Context, history []types.Message, newMessage string) (string, error)
}

// ProviderFunc 把普通函数适配为 Provider，主要用于测试与组合
type ProviderFunc func(ctx context.Context, history []types.Message, newMessage string) (string, error)

// Name 实现 Provider
func (f ProviderFunc) Name() string { return "func" }

// Generate 实现 Provider
func (f ProviderFunc) Generate(ctx context.Context, history []types.Message, newMessage string) (string, error) {
	return f(ctx, history, newMessage)
}
