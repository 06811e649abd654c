package session

import (
	"sync"

	"github.com/BaSui01/teddyvoice/llm/tokenizer"
	"github.com/BaSui01/teddyvoice/types"
)

// History 有界对话历史窗口，保留最近 maxTurns 轮，最旧的先丢弃
type History struct {
	mu       sync.Mutex
	maxTurns int
	turns    []historyTurn
}

type historyTurn struct {
	user      types.Message
	assistant types.Message
}

// NewHistory 创建历史窗口；maxTurns <= 0 时不保留历史
func NewHistory(maxTurns int) *History {
	return &History{maxTurns: maxTurns}
}

// Append 追加一轮问答
func (h *History) Append(userText, replyText string) {
	if h.maxTurns <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	user, assistant := types.Exchange(userText, replyText)
	h.turns = append(h.turns, historyTurn{user: user, assistant: assistant})
	if over := len(h.turns) - h.maxTurns; over > 0 {
		h.turns = append(h.turns[:0:0], h.turns[over:]...)
	}
}

// Messages 按时间顺序返回历史消息副本
func (h *History) Messages() []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]types.Message, 0, len(h.turns)*2)
	for _, t := range h.turns {
		out = append(out, t.user, t.assistant)
	}
	return out
}

// MessagesWithin 返回不超过 maxTokens 的最近若干整轮，按轮丢弃最旧的问答，
// 结果总是以 user 消息开头。maxTokens <= 0 表示不限制。
func (h *History) MessagesWithin(t tokenizer.Tokenizer, maxTokens int) []types.Message {
	msgs := tokenizer.TrimToBudget(t, h.Messages(), maxTokens)
	if len(msgs)%2 == 1 {
		msgs = msgs[1:]
	}
	return msgs
}

// Len 返回保留的轮数
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Reset 清空历史
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
