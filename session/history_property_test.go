package session

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/teddyvoice/llm/tokenizer"
	"github.com/BaSui01/teddyvoice/types"
)

// 历史窗口只保留最近 maxTurns 轮，且每轮总是 user + assistant 成对出现
func TestProperty_History_BoundedWindow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxTurns := rapid.IntRange(1, 8).Draw(rt, "maxTurns")
		appends := rapid.IntRange(0, 30).Draw(rt, "appends")

		h := NewHistory(maxTurns)
		for i := 0; i < appends; i++ {
			h.Append(fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i))
		}

		want := min(appends, maxTurns)
		require.Equal(t, want, h.Len())

		msgs := h.Messages()
		require.Len(t, msgs, want*2)
		first := appends - want
		for i := 0; i < want; i++ {
			assert.Equal(t, types.RoleUser, msgs[2*i].Role)
			assert.Equal(t, fmt.Sprintf("u%d", first+i), msgs[2*i].Content)
			assert.Equal(t, types.RoleAssistant, msgs[2*i+1].Role)
			assert.Equal(t, fmt.Sprintf("a%d", first+i), msgs[2*i+1].Content)
		}
	})
}

func TestHistory_DisabledAndReset(t *testing.T) {
	h := NewHistory(0)
	h.Append("u", "a")
	assert.Equal(t, 0, h.Len())

	h = NewHistory(3)
	h.Append("u", "a")
	msgs := h.Messages()
	msgs[0].Content = "mutated"
	assert.Equal(t, "u", h.Messages()[0].Content, "Messages returns a copy")

	h.Reset()
	assert.Empty(t, h.Messages())
}

// 按 token 预算裁剪时以整轮为单位：结果是完整历史的后缀，user 开头且成对出现
func TestProperty_History_MessagesWithinKeepsWholeTurns(t *testing.T) {
	tok := tokenizer.NewEstimatorTokenizer()
	rapid.Check(t, func(rt *rapid.T) {
		turns := rapid.IntRange(0, 6).Draw(rt, "turns")
		budget := rapid.IntRange(1, 120).Draw(rt, "budget")

		h := NewHistory(6)
		for i := 0; i < turns; i++ {
			user := rapid.StringMatching(`[a-z ]{1,40}`).Draw(rt, fmt.Sprintf("user%d", i))
			reply := rapid.StringMatching(`[a-z ]{1,80}`).Draw(rt, fmt.Sprintf("reply%d", i))
			h.Append(user, reply)
		}
		all := h.Messages()

		got := h.MessagesWithin(tok, budget)
		require.Zero(t, len(got)%2)
		require.Equal(t, all[len(all)-len(got):], got)
		for i := 0; i < len(got); i += 2 {
			assert.Equal(t, types.RoleUser, got[i].Role)
			assert.Equal(t, types.RoleAssistant, got[i+1].Role)
		}
		if len(got) > 0 {
			n, err := tok.CountMessages(got)
			require.NoError(t, err)
			assert.LessOrEqual(t, n, budget)
		}
	})
}

func TestHistory_MessagesWithinDropsOrphanReply(t *testing.T) {
	tok := tokenizer.NewEstimatorTokenizer()
	h := NewHistory(5)
	h.Append("u", strings.Repeat("a", 40))
	h.Append("hi", "ok")

	// 32 token 放不下两轮；只丢最旧的 user 会剩下 27 token，但首条变成 assistant
	got := h.MessagesWithin(tok, 27)
	require.Len(t, got, 2)
	assert.Equal(t, types.RoleUser, got[0].Role)
	assert.Equal(t, "hi", got[0].Content)

	assert.Len(t, h.MessagesWithin(tok, 0), 4, "0 表示不限制")
	assert.Len(t, h.MessagesWithin(tok, 32), 4)
	assert.Empty(t, h.MessagesWithin(tok, 5))
}
