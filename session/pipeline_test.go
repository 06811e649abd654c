package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/teddyvoice/llm/moderation"
	"github.com/BaSui01/teddyvoice/testutil"
	"github.com/BaSui01/teddyvoice/types"
)

type moderationVerdict = moderation.Verdict

// =============================================================================
// 🔁 回合流水线测试
// =============================================================================

func TestPipeline_EndToEndAudioTurn(t *testing.T) {
	h := newHarness(t)
	h.dialer.WithFrames([]byte{1, 2, 3}, []byte{4, 5})
	c := h.newClient(t, "s1")
	states := trackStates(c)

	require.NoError(t, c.OnAudioFrame(pcm(2048)))

	turn := h.rec.next(t)
	assert.Equal(t, "hello", turn.InputText)
	assert.Equal(t, "hi there", turn.ReplyText)
	assert.Equal(t, OutcomeCompleted, turn.Outcome)
	assert.Equal(t, SourceAudio, turn.Source)
	assert.Equal(t, 2, turn.Frames)
	assert.Equal(t, "s1", turn.SessionID)
	assert.True(t, turn.InputVerdict.Allowed)
	assert.True(t, turn.ReplyVerdict.Allowed)

	first, ok := c.NextOutput()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, first.Data)
	second, ok := c.NextOutput()
	require.True(t, ok)
	assert.Equal(t, []byte{4, 5}, second.Data)
	_, ok = c.NextOutput()
	assert.False(t, ok)

	waitIdle(t, c)
	assert.Equal(t, []State{
		StateBuffering,
		StateTranscribing,
		StateModeratingInput,
		StateGenerating,
		StateModeratingOutput,
		StateSynthesizing,
		StateIdle,
	}, states.States())

	assert.Len(t, h.stt.Inputs()[0], 2048)
	assert.Equal(t, 1, c.History().Len())

	ev := nextEvent(t, c, EventTranscript)
	assert.Equal(t, "hello", ev.Text)
	assert.Equal(t, "hi there", ev.Reply)
}

func TestPipeline_BelowThresholdStaysBuffering(t *testing.T) {
	h := newHarness(t)
	c := h.newClient(t, "s1")

	require.NoError(t, c.OnAudioFrame(pcm(512)))

	assert.Equal(t, StateBuffering, c.State())
	assert.Never(t, func() bool { return h.stt.CallCount() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, c.OnAudioFrame(pcm(512)))
	h.rec.next(t)
	assert.Len(t, h.stt.Inputs()[0], 1024)
}

func TestPipeline_LowConfidenceReturnsToIdle(t *testing.T) {
	h := newHarness(t, withTranscription("mumble", 0.2))
	c := h.newClient(t, "s1")
	states := trackStates(c)

	require.NoError(t, c.OnAudioFrame(pcm(2048)))

	require.Eventually(t, func() bool { return h.stt.CallCount() == 1 }, 3*time.Second, 5*time.Millisecond)
	waitIdle(t, c)

	assert.Equal(t, 0, h.llm.CallCount())
	assert.Equal(t, 0, h.dialer.DialCount())
	assert.Empty(t, h.rec.Turns(), "noise is not logged")
	assert.Equal(t, []State{StateBuffering, StateTranscribing, StateIdle}, states.States())
	assert.Equal(t, 0, c.output.Len())
}

func TestPipeline_ModerationShortCircuit(t *testing.T) {
	h := newHarness(t)
	h.mod.BlockAll("unsafe")
	c := h.newClient(t, "s1")

	require.NoError(t, c.OnAudioFrame(pcm(2048)))

	turn := h.rec.next(t)
	assert.Equal(t, 0, h.llm.CallCount(), "generate must never be called")
	assert.Equal(t, DefaultFallbackReply, turn.ReplyText)
	assert.Equal(t, OutcomeInputBlocked, turn.Outcome)
	assert.False(t, turn.InputVerdict.Allowed)
	assert.Equal(t, "unsafe", turn.InputVerdict.Reason)

	sent := h.dialer.LastStream().Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, DefaultFallbackReply, sent[0].Text)
	assert.Equal(t, []string{"hello"}, h.mod.Texts(), "fallback bypasses moderation")
	assert.Equal(t, 0, c.History().Len())
}

func TestPipeline_BlockedReplyReplacedByFallback(t *testing.T) {
	h := newHarness(t)
	h.mod.BlockText("hi there", "violence")
	c := h.newClient(t, "s1")

	require.NoError(t, c.OnAudioFrame(pcm(2048)))

	turn := h.rec.next(t)
	assert.Equal(t, 1, h.llm.CallCount())
	assert.Equal(t, OutcomeReplyBlocked, turn.Outcome)
	assert.Equal(t, DefaultFallbackReply, turn.ReplyText)
	assert.False(t, turn.ReplyVerdict.Allowed)

	sent := h.dialer.LastStream().Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, DefaultFallbackReply, sent[0].Text)
}

func TestPipeline_ProviderErrorFailsWithApology(t *testing.T) {
	h := newHarness(t)
	h.stt.WithErrors(types.NewPermanentError("mock_stt", "bad audio", nil))
	c := h.newClient(t, "s1")
	states := trackStates(c)

	require.NoError(t, c.OnAudioFrame(pcm(2048)))

	turn := h.rec.next(t)
	assert.Equal(t, OutcomeFailed, turn.Outcome)
	assert.Contains(t, turn.Error, "PERMANENT_PROVIDER")
	assert.Equal(t, 1, h.stt.CallCount(), "permanent errors are not retried")
	assert.Equal(t, 0, h.llm.CallCount())

	sent := h.dialer.LastStream().Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, DefaultApologyReply, sent[0].Text)

	waitIdle(t, c)
	assert.Contains(t, states.States(), StateFailed)
	assert.Equal(t, StateIdle, states.States()[len(states.States())-1])
}

func TestPipeline_TransientErrorRetriedWithinCall(t *testing.T) {
	h := newHarness(t)
	h.llm.WithErrors(types.NewTransientError("mock", "rate limited", nil))
	c := h.newClient(t, "s1")

	require.NoError(t, c.OnText("tell me a story"))

	turn := h.rec.next(t)
	assert.Equal(t, OutcomeCompleted, turn.Outcome)
	assert.Equal(t, 2, h.llm.CallCount())
	assert.Equal(t, "hi there", turn.ReplyText)
}

func TestPipeline_TurnTimeoutForcesFailed(t *testing.T) {
	h := newHarness(t, withPipelineConfig(func(cfg *PipelineConfig) {
		cfg.TurnTimeout = 100 * time.Millisecond
	}))
	h.llm.WithDelay(5 * time.Second)
	c := h.newClient(t, "s1")

	start := time.Now()
	require.NoError(t, c.OnText("hello"))

	turn := h.rec.next(t)
	assert.Less(t, time.Since(start), 2*time.Second, "in-flight call must be cancelled")
	assert.Equal(t, OutcomeTimeout, turn.Outcome)
	assert.Contains(t, turn.Error, string(types.ErrTurnTimeout))

	sent := h.dialer.LastStream().Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, DefaultApologyReply, sent[0].Text)
	waitIdle(t, c)
}

func TestPipeline_TextTurnSkipsTranscription(t *testing.T) {
	h := newHarness(t)
	c := h.newClient(t, "s1")
	states := trackStates(c)

	require.NoError(t, c.OnText("what is a cloud?"))

	turn := h.rec.next(t)
	assert.Equal(t, SourceText, turn.Source)
	assert.Equal(t, "what is a cloud?", turn.InputText)
	assert.Equal(t, 0, h.stt.CallCount())
	assert.Equal(t, StateModeratingInput, states.States()[0])
}

func TestPipeline_HistoryWindowPassedToProvider(t *testing.T) {
	h := newHarness(t, withPipelineConfig(func(cfg *PipelineConfig) {
		cfg.HistoryTurns = 1
	}))
	c := h.newClient(t, "s1")

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, c.OnText(text))
		h.rec.next(t)
	}

	calls := h.llm.Calls()
	require.Len(t, calls, 3)
	assert.Empty(t, calls[0].History)
	require.Len(t, calls[2].History, 2, "only the last turn is kept")
	testutil.AssertMessagesEqual(t, []types.Message{
		types.NewUserMessage("two"),
		types.NewAssistantMessage("hi there"),
	}, calls[2].History)
	assert.Equal(t, "three", calls[2].NewMessage)
}

func TestPipeline_ModerationErrorFailsTurn(t *testing.T) {
	h := newHarness(t)
	h.mod.WithCheck(func(string) (moderationVerdict, error) {
		return moderationVerdict{}, errors.New("moderation backend down")
	})
	c := h.newClient(t, "s1")

	require.NoError(t, c.OnText("hello"))

	turn := h.rec.next(t)
	assert.Equal(t, OutcomeFailed, turn.Outcome)
	assert.Equal(t, 0, h.llm.CallCount())
}

func TestPipeline_SessionCloseAbortsTurnWithoutApology(t *testing.T) {
	h := newHarness(t)
	h.stt.WithGate(make(chan struct{}))
	c := h.newClient(t, "s1")

	require.NoError(t, c.OnAudioFrame(pcm(2048)))
	<-h.stt.Started()

	c.Close()

	turn := h.rec.next(t)
	assert.Equal(t, OutcomeFailed, turn.Outcome)
	assert.Contains(t, turn.Error, string(types.ErrSessionClosed))
	assert.Equal(t, 0, h.dialer.DialCount())
}

func TestPipelineConfig_Defaults(t *testing.T) {
	p := NewPipeline(PipelineConfig{}, Dependencies{}, nil)
	cfg := p.Config()

	assert.Equal(t, 1024, cfg.ChunkThreshold)
	assert.Equal(t, 0.0, cfg.MinConfidence)
	assert.Equal(t, 10*time.Second, cfg.TurnTimeout)
	assert.Equal(t, DefaultFallbackReply, cfg.FallbackReply)
	assert.Equal(t, DefaultApologyReply, cfg.ApologyReply)
	assert.GreaterOrEqual(t, cfg.MaxUtteranceBytes, cfg.ChunkThreshold)

}
