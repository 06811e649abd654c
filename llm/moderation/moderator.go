package moderation

import (
	"context"
	"strings"
	"sync"
	"unicode"
)

// Verdict 审核结论。被拦截是正常分支，不是错误。
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow 放行结论
func Allow() Verdict { return Verdict{Allowed: true} }

// Block 拦截结论
func Block(reason string) Verdict { return Verdict{Allowed: false, Reason: reason} }

// Moderator 内容审核接口
type Moderator interface {
	Name() string
	Check(ctx context.Context, text string) (Verdict, error)
}

// =============================================================================
// 🔤 关键词审核
// =============================================================================

// KeywordModerator 基于关键词黑名单的本地审核，按单词边界大小写不敏感匹配
type KeywordModerator struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

// NewKeywordModerator 创建关键词审核器
func NewKeywordModerator(words []string) *KeywordModerator {
	m := &KeywordModerator{}
	m.SetWords(words)
	return m
}

// SetWords 替换黑名单，配置热更新时调用
func (m *KeywordModerator) SetWords(words []string) {
	blocked := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			blocked[w] = struct{}{}
		}
	}
	m.mu.Lock()
	m.blocked = blocked
	m.mu.Unlock()
}

func (m *KeywordModerator) Name() string { return "keyword" }

// Check 实现 Moderator
func (m *KeywordModerator) Check(_ context.Context, text string) (Verdict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.blocked) == 0 {
		return Allow(), nil
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	for _, w := range words {
		if _, ok := m.blocked[w]; ok {
			return Block("keyword:" + w), nil
		}
	}
	return Allow(), nil
}

// =============================================================================
// 🔗 组合
// =============================================================================

// Chain 依次执行多个审核器，第一个拦截结论生效；任一审核器出错即返回错误
type Chain []Moderator

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, m := range c {
		names = append(names, m.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Check 实现 Moderator
func (c Chain) Check(ctx context.Context, text string) (Verdict, error) {
	for _, m := range c {
		v, err := m.Check(ctx, text)
		if err != nil {
			return Verdict{}, err
		}
		if !v.Allowed {
			return v, nil
		}
	}
	return Allow(), nil
}

// AllowAll 放行所有内容，用于未配置审核服务的开发环境
type AllowAll struct{}

func (AllowAll) Name() string { return "allow_all" }

func (AllowAll) Check(context.Context, string) (Verdict, error) { return Allow(), nil }
