package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/teddyvoice/internal/ctxkeys"
	"github.com/BaSui01/teddyvoice/llm/retry"
	"github.com/BaSui01/teddyvoice/session"
	"github.com/BaSui01/teddyvoice/synthesis"
	"github.com/BaSui01/teddyvoice/testutil"
	"github.com/BaSui01/teddyvoice/testutil/mocks"
	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 🧪 测试环境
// =============================================================================

type testEnv struct {
	cfg      Config
	regCfg   session.RegistryConfig
	synth    synthesis.Config
	dialer   *mocks.MockSynthesisDialer
	wrap     func(http.Handler) http.Handler
	registry *session.Registry
	server   *httptest.Server
	url      string
}

type envOption func(*testEnv)

func withGatewayConfig(fn func(*Config)) envOption {
	return func(e *testEnv) { fn(&e.cfg) }
}

func withMaxSessions(n int) envOption {
	return func(e *testEnv) { e.regCfg.MaxSessions = n }
}

func withMiddleware(fn func(http.Handler) http.Handler) envOption {
	return func(e *testEnv) { e.wrap = fn }
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	e := &testEnv{
		cfg:    DefaultConfig(),
		regCfg: session.DefaultRegistryConfig(),
		synth:  synthesis.DefaultConfig(),
		dialer: mocks.NewMockSynthesisDialer(),
		wrap:   func(h http.Handler) http.Handler { return h },
	}
	e.cfg.PingInterval = 0
	for _, opt := range opts {
		opt(e)
	}

	pcfg := session.DefaultPipelineConfig()
	pcfg.TurnTimeout = 2 * time.Second
	pcfg.ApologyTimeout = time.Second
	pcfg.Retry = retry.RetryPolicy{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	pipeline := session.NewPipeline(pcfg, session.Dependencies{
		Transcriber: mocks.NewMockTranscriber("hello", 0.9),
		Moderator:   mocks.NewMockModerator(),
		Provider:    mocks.NewMockProvider().WithResponse("hi there"),
	}, nil)

	e.registry = session.NewRegistry(e.regCfg, pipeline, e.dialer, e.synth, nil,
		session.WithLinkOptions(synthesis.WithSleep(noSleep)))
	t.Cleanup(e.registry.CloseAll)

	h := NewHandler(e.cfg, e.registry, nil)
	mux := http.NewServeMux()
	mux.Handle(h.Path(), e.wrap(h))
	e.server = httptest.NewServer(mux)
	t.Cleanup(e.server.Close)
	e.url = "ws" + strings.TrimPrefix(e.server.URL, "http") + h.Path()
	return e
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, e.url+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// connect 建连并读掉欢迎帧
func (e *testEnv) connect(t *testing.T) (*websocket.Conn, OutboundFrame) {
	t.Helper()
	conn := e.dial(t, "")
	welcome := readFrame(t, conn)
	require.Equal(t, FrameConnection, welcome.Type)
	return conn, welcome
}

func readFrame(t *testing.T, conn *websocket.Conn) OutboundFrame {
	t.Helper()
	ctx := testutil.TestContextWithTimeout(t, 3*time.Second)
	var f OutboundFrame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	return f
}

func readUntil(t *testing.T, conn *websocket.Conn, typ FrameType) (OutboundFrame, []OutboundFrame) {
	t.Helper()
	var seen []OutboundFrame
	for i := 0; i < 50; i++ {
		f := readFrame(t, conn)
		if f.Type == typ {
			return f, seen
		}
		seen = append(seen, f)
	}
	t.Fatalf("no %s frame received", typ)
	return OutboundFrame{}, nil
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx := testutil.TestContextWithTimeout(t, 3*time.Second)
	require.NoError(t, wsjson.Write(ctx, conn, v))
}

func writeBinary(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	ctx := testutil.TestContextWithTimeout(t, 3*time.Second)
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, data))
}

func audioPayloads(frames []OutboundFrame) [][]byte {
	var out [][]byte
	for _, f := range frames {
		if f.Type != FrameAudio {
			continue
		}
		data, _ := base64.StdEncoding.DecodeString(f.Payload)
		out = append(out, data)
	}
	return out
}

// =============================================================================
// 🔌 连接与控制帧
// =============================================================================

func TestHandler_WelcomeAndPing(t *testing.T) {
	e := newTestEnv(t)
	conn, welcome := e.connect(t)

	assert.Equal(t, "connected", welcome.Status)
	assert.NotEmpty(t, welcome.SessionID)
	assert.NotEmpty(t, welcome.Format)
	_, ok := e.registry.Get(welcome.SessionID)
	assert.True(t, ok)

	writeJSON(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, FramePong, readFrame(t, conn).Type)
}

func TestHandler_ControlResponse(t *testing.T) {
	e := newTestEnv(t)
	conn, _ := e.connect(t)

	for _, tt := range []struct{ command, status string }{
		{session.CommandStopStream, "stopped"},
		{session.CommandStartStream, "started"},
		{session.CommandMute, "muted"},
		{session.CommandUnmute, "unmuted"},
	} {
		writeJSON(t, conn, InboundFrame{Type: FrameControl, Command: tt.command})
		f := readFrame(t, conn)
		assert.Equal(t, FrameControlResponse, f.Type)
		assert.Equal(t, tt.command, f.Command)
		assert.Equal(t, tt.status, f.Status)
	}
}

func TestHandler_InvalidFramesKeepConnection(t *testing.T) {
	e := newTestEnv(t)
	conn, _ := e.connect(t)

	tests := []struct {
		name  string
		frame string
	}{
		{"unknown type", `{"type":"dance"}`},
		{"not json", `hello bear`},
		{"missing type", `{"text":"hi"}`},
		{"unknown command", `{"type":"control","command":"fly"}`},
		{"bad base64", `{"type":"audio","payload":"***"}`},
		{"empty text", `{"type":"text","text":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(tt.frame)))

			f := readFrame(t, conn)
			assert.Equal(t, FrameError, f.Type)
			assert.Equal(t, string(types.ErrInvalidFrame), f.Code)
			assert.NotEmpty(t, f.Message)
		})
	}

	writeJSON(t, conn, InboundFrame{Type: FramePing})
	assert.Equal(t, FramePong, readFrame(t, conn).Type)
}

// =============================================================================
// 🔁 回合
// =============================================================================

func TestHandler_BinaryAudioTurn(t *testing.T) {
	e := newTestEnv(t)
	e.dialer.WithFrames([]byte{1, 2, 3}, []byte{4, 5})
	conn, _ := e.connect(t)

	writeBinary(t, conn, testutil.PCM(2048))

	transcript, before := readUntil(t, conn, FrameTranscript)
	assert.Equal(t, "hello", transcript.Text)
	assert.Equal(t, "hi there", transcript.Reply)
	assert.Equal(t, [][]byte{{1, 2, 3}, {4, 5}}, audioPayloads(before), "audio precedes the transcript in provider order")
	for _, f := range before {
		assert.NotEmpty(t, f.Format)
	}
}

func TestHandler_Base64AudioTurn(t *testing.T) {
	e := newTestEnv(t)
	e.dialer.WithFrames([]byte{7})
	conn, _ := e.connect(t)

	payload := base64.StdEncoding.EncodeToString(testutil.PCM(2048))
	writeJSON(t, conn, InboundFrame{Type: FrameAudio, Payload: payload})

	_, before := readUntil(t, conn, FrameTranscript)
	assert.Equal(t, [][]byte{{7}}, audioPayloads(before))
}

func TestHandler_TextTurn(t *testing.T) {
	e := newTestEnv(t)
	conn, _ := e.connect(t)

	writeJSON(t, conn, InboundFrame{Type: FrameText, Text: "what is a cloud?"})

	transcript, before := readUntil(t, conn, FrameTranscript)
	assert.Equal(t, "what is a cloud?", transcript.Text)
	assert.Equal(t, [][]byte{[]byte("hi there")}, audioPayloads(before))
}

func TestHandler_TerminatedFrameClosesConnection(t *testing.T) {
	e := newTestEnv(t, func(e *testEnv) { e.synth.MaxReconnectAttempts = 1 })
	e.dialer.WithDialErrors(errors.New("refused"), errors.New("refused"), errors.New("refused"))
	conn, _ := e.connect(t)

	writeJSON(t, conn, InboundFrame{Type: FrameText, Text: "hello"})

	f, _ := readUntil(t, conn, FrameTerminated)
	assert.Equal(t, string(types.ErrReconnectExhausted), f.Reason)
	assert.Equal(t, session.DefaultApologyReply, f.Message)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	assert.Eventually(t, func() bool { return e.registry.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
}

// =============================================================================
// 🧹 生命周期
// =============================================================================

func TestHandler_DisconnectRemovesSession(t *testing.T) {
	e := newTestEnv(t)
	conn, welcome := e.connect(t)
	require.Equal(t, 1, e.registry.Len())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	assert.Eventually(t, func() bool { return e.registry.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
	_, ok := e.registry.Get(welcome.SessionID)
	assert.False(t, ok)
}

func TestHandler_ServerRemoveClosesConnection(t *testing.T) {
	e := newTestEnv(t)
	conn, welcome := e.connect(t)

	require.True(t, e.registry.Remove(welcome.SessionID))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandler_SessionsAreIsolated(t *testing.T) {
	e := newTestEnv(t)
	a, welcomeA := e.connect(t)
	b, _ := e.connect(t)
	require.Equal(t, 2, e.registry.Len())

	require.NoError(t, a.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return e.registry.Len() == 1 }, 3*time.Second, 10*time.Millisecond)
	_, ok := e.registry.Get(welcomeA.SessionID)
	assert.False(t, ok)

	writeJSON(t, b, InboundFrame{Type: FramePing})
	assert.Equal(t, FramePong, readFrame(t, b).Type)
}

func TestHandler_SessionLimitRejectsUpgrade(t *testing.T) {
	e := newTestEnv(t, withMaxSessions(1))
	e.connect(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, e.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 1, e.registry.Len())
}

func TestHandler_FrameRateLimit(t *testing.T) {
	e := newTestEnv(t, withGatewayConfig(func(c *Config) {
		c.FrameRate = 0.01
		c.FrameBurst = 1
	}))
	conn, _ := e.connect(t)

	writeJSON(t, conn, InboundFrame{Type: FramePing})
	assert.Equal(t, FramePong, readFrame(t, conn).Type)

	writeJSON(t, conn, InboundFrame{Type: FramePing})
	f := readFrame(t, conn)
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, string(types.ErrRateLimited), f.Code)
}

func TestHandler_DeviceID(t *testing.T) {
	t.Run("from authenticated context", func(t *testing.T) {
		e := newTestEnv(t, withMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(ctxkeys.WithDeviceID(r.Context(), "bear-42")))
			})
		}))
		conn := e.dial(t, "?device_id=spoofed")
		readFrame(t, conn)

		list := e.registry.List()
		require.Len(t, list, 1)
		assert.Equal(t, "bear-42", list[0].DeviceID)
	})

	t.Run("from query", func(t *testing.T) {
		e := newTestEnv(t)
		conn := e.dial(t, "?device_id=bunny-7")
		readFrame(t, conn)

		list := e.registry.List()
		require.Len(t, list, 1)
		assert.Equal(t, "bunny-7", list[0].DeviceID)
	})
}

func TestHandler_KeepalivePing(t *testing.T) {
	e := newTestEnv(t, withGatewayConfig(func(c *Config) {
		c.PingInterval = 20 * time.Millisecond
		c.PongTimeout = time.Second
	}))
	conn, _ := e.connect(t)

	// 客户端在 Read 中回应 ping，超时前恢复读取即可
	time.Sleep(100 * time.Millisecond)
	writeJSON(t, conn, InboundFrame{Type: FramePing})
	assert.Equal(t, FramePong, readFrame(t, conn).Type)
	assert.Equal(t, 1, e.registry.Len())
}
