package tokenizer

import (
	"github.com/BaSui01/teddyvoice/types"
)

// Tokenizer 统一的 token 计数接口
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数，包括每条消息的角色与分隔符开销
	CountMessages(messages []types.Message) (int, error)

	// Name 返回分词器名称
	Name() string
}

// New 返回给定模型的分词器：已知的 OpenAI 模型使用 tiktoken，
// tiktoken 编码无法加载时回退到估算器。
func New(model string) Tokenizer {
	return &fallbackTokenizer{
		primary:  NewTiktokenTokenizer(model),
		fallback: NewEstimatorTokenizer(),
	}
}

// TrimToBudget 从最旧的消息开始丢弃，直到剩余消息的 token 数不超过 maxTokens。
// 返回的切片共享底层数组。maxTokens <= 0 表示不限制。
func TrimToBudget(t Tokenizer, messages []types.Message, maxTokens int) []types.Message {
	if maxTokens <= 0 || len(messages) == 0 {
		return messages
	}
	for start := 0; start < len(messages); start++ {
		n, err := t.CountMessages(messages[start:])
		if err != nil {
			return messages[start:]
		}
		if n <= maxTokens {
			return messages[start:]
		}
	}
	return messages[len(messages):]
}

type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.fallback.CountTokens(text)
}

func (f *fallbackTokenizer) CountMessages(messages []types.Message) (int, error) {
	if n, err := f.primary.CountMessages(messages); err == nil {
		return n, nil
	}
	return f.fallback.CountMessages(messages)
}

func (f *fallbackTokenizer) Name() string {
	return f.primary.Name() + "|" + f.fallback.Name()
}
