package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/llm/retry"
	"github.com/BaSui01/teddyvoice/llm/speech"
	"github.com/BaSui01/teddyvoice/synthesis"
	"github.com/BaSui01/teddyvoice/testutil"
	"github.com/BaSui01/teddyvoice/testutil/mocks"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type memRecorder struct {
	mu    sync.Mutex
	turns []Turn
	ch    chan Turn
}

func newMemRecorder() *memRecorder {
	return &memRecorder{ch: make(chan Turn, 64)}
}

func (r *memRecorder) Record(_ context.Context, _ string, turn Turn) {
	r.mu.Lock()
	r.turns = append(r.turns, turn)
	r.mu.Unlock()
	select {
	case r.ch <- turn:
	default:
	}
}

func (r *memRecorder) Turns() []Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Turn(nil), r.turns...)
}

func (r *memRecorder) next(t *testing.T) Turn {
	t.Helper()
	select {
	case turn := <-r.ch:
		return turn
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a recorded turn")
		return Turn{}
	}
}

type harness struct {
	stt      *mocks.MockTranscriber
	llm      *mocks.MockProvider
	mod      *mocks.MockModerator
	dialer   *mocks.MockSynthesisDialer
	rec      *memRecorder
	cfg      PipelineConfig
	synth    synthesis.Config
	voices   speech.VoiceResolver
	pipeline *Pipeline
}

type harnessOption func(*harness)

func withTranscription(text string, confidence float64) harnessOption {
	return func(h *harness) { h.stt = mocks.NewMockTranscriber(text, confidence) }
}

func withVoices(v speech.VoiceResolver) harnessOption {
	return func(h *harness) { h.voices = v }
}

func withPipelineConfig(fn func(*PipelineConfig)) harnessOption {
	return func(h *harness) { fn(&h.cfg) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		stt:    mocks.NewMockTranscriber("hello", 0.9),
		llm:    mocks.NewMockProvider().WithResponse("hi there"),
		mod:    mocks.NewMockModerator(),
		dialer: mocks.NewMockSynthesisDialer(),
		rec:    newMemRecorder(),
		cfg:    DefaultPipelineConfig(),
		synth:  synthesis.DefaultConfig(),
	}
	h.cfg.TurnTimeout = 2 * time.Second
	h.cfg.ApologyTimeout = time.Second
	h.cfg.Retry = retry.RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	for _, opt := range opts {
		opt(h)
	}

	h.pipeline = NewPipeline(h.cfg, Dependencies{
		Transcriber: h.stt,
		Moderator:   h.mod,
		Provider:    h.llm,
		Recorder:    h.rec,
	}, zap.NewNop())
	return h
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (h *harness) newClient(t *testing.T, id string) *Client {
	t.Helper()
	c := NewClient(id, ConnInfo{DeviceID: "teddy-" + id}, ClientOptions{
		Synthesis:   h.synth,
		Dialer:      h.dialer,
		Voices:      h.voices,
		Pipeline:    h.pipeline,
		LinkOptions: []synthesis.Option{synthesis.WithSleep(noSleep)},
	})
	t.Cleanup(c.Close)
	return c
}

func (h *harness) newRegistry(t *testing.T, cfg RegistryConfig, opts ...RegistryOption) *Registry {
	t.Helper()
	opts = append(opts, WithLinkOptions(synthesis.WithSleep(noSleep)))
	r := NewRegistry(cfg, h.pipeline, h.dialer, h.synth, zap.NewNop(), opts...)
	t.Cleanup(r.CloseAll)
	return r
}

type transitionLog struct {
	mu    sync.Mutex
	steps []State
}

func (l *transitionLog) hook(_, to State) {
	l.mu.Lock()
	l.steps = append(l.steps, to)
	l.mu.Unlock()
}

func (l *transitionLog) States() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.steps...)
}

func trackStates(c *Client) *transitionLog {
	log := &transitionLog{}
	c.sm.onTransition = log.hook
	return log
}

func waitIdle(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		running := c.running
		c.mu.Unlock()
		return !running && c.State() == StateIdle
	}, 3*time.Second, 5*time.Millisecond)
}

func nextEvent(t *testing.T, c *Client, typ EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
			return Event{}
		}
	}
}

func pcm(n int) []byte {
	return testutil.PCM(n)
}
