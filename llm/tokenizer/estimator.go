package tokenizer

import (
	"unicode"

	"github.com/BaSui01/teddyvoice/types"
)

// 估算权重以 1/12 token 为单位：表意文字约 1.5 字符一个 token，其余约 4 字符。
const (
	ideographWeight = 8
	otherWeight     = 3
	weightPerToken  = 12

	// 每条消息的角色与分隔符开销，以及回复起始的固定开销
	messageOverhead = 4
	replyOverhead   = 3
)

// wideScripts 按表意文字计权的书写系统
var wideScripts = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
}

// EstimatorTokenizer 按字符类别估算 token 数，不依赖任何编码表。
// tiktoken 编码无法加载时作为回退，也是流水线的默认分词器。
type EstimatorTokenizer struct{}

// NewEstimatorTokenizer 创建估算器
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

// CountTokens 估算文本 token 数，非空文本至少为 1
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	weight := 0
	for _, r := range text {
		if isWide(r) {
			weight += ideographWeight
		} else {
			weight += otherWeight
		}
	}
	return max(weight/weightPerToken, 1), nil
}

// CountMessages 估算历史消息的总 token 数
func (e *EstimatorTokenizer) CountMessages(messages []types.Message) (int, error) {
	total := replyOverhead
	for _, msg := range messages {
		n, _ := e.CountTokens(msg.Content)
		total += n + messageOverhead
	}
	return total, nil
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

func isWide(r rune) bool {
	return unicode.In(r, wideScripts...) || unicode.Is(unicode.Ideographic, r)
}
