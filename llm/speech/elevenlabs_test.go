package speech

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeElevenLabs 模拟 multi-stream-input：每个 context 关闭后推送两帧音频与 isFinal
func fakeElevenLabs(t *testing.T, frames ...[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/text-to-speech/teddy/multi-stream-input"))
		assert.Equal(t, "pcm_16000", r.URL.Query().Get("output_format"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		var init map[string]any
		if err := wsjson.Read(ctx, conn, &init); err != nil {
			return
		}
		assert.Contains(t, init, "voice_settings")

		for {
			var msg map[string]any
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			if msg["close_context"] != true {
				continue
			}
			id, _ := msg["context_id"].(string)
			for _, f := range frames {
				_ = wsjson.Write(ctx, conn, map[string]any{
					"audio":     base64.StdEncoding.EncodeToString(f),
					"contextId": id,
				})
			}
			_ = wsjson.Write(ctx, conn, map[string]any{"contextId": id, "isFinal": true})
		}
	}))
}

func dialTest(t *testing.T, srv *httptest.Server) SynthesisStream {
	t.Helper()
	d := NewElevenLabsDialer(ElevenLabsConfig{
		APIKey:  "secret",
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := d.Dial(ctx, StreamConfig{
		VoiceID:       "teddy",
		ModelID:       "eleven_flash_v2_5",
		OutputFormat:  audio.DefaultOutputFormat(),
		VoiceSettings: VoiceSettings{Stability: 0.5, SimilarityBoost: 0.8},
	})
	require.NoError(t, err)
	return stream
}

func TestElevenLabsStream_RoundTrip(t *testing.T) {
	srv := fakeElevenLabs(t, []byte("frame-1"), []byte("frame-2"))
	defer srv.Close()

	stream := dialTest(t, srv)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, stream.SendText(ctx, "ctx-1", "hi there"))

	var frames []string
	for {
		ev, err := stream.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ctx-1", ev.ContextID)
		if ev.Final {
			break
		}
		frames = append(frames, string(ev.Audio))
	}
	assert.Equal(t, []string{"frame-1", "frame-2"}, frames)
}

func TestElevenLabsStream_CloseIsIdempotent(t *testing.T) {
	srv := fakeElevenLabs(t)
	defer srv.Close()

	stream := dialTest(t, srv)
	assert.NoError(t, stream.Close())
	assert.NotPanics(t, func() { _ = stream.Close() })

	_, err := stream.Recv(context.Background())
	assert.True(t, types.IsCode(err, types.ErrConnectionLost))
}

func TestElevenLabsDialer_RequiresVoice(t *testing.T) {
	d := NewElevenLabsDialer(ElevenLabsConfig{}, nil)
	_, err := d.Dial(context.Background(), StreamConfig{})
	assert.True(t, types.IsCode(err, types.ErrPermanentProvider))
}

func TestElevenLabsDialer_BuildURL(t *testing.T) {
	d := NewElevenLabsDialer(ElevenLabsConfig{BaseURL: "wss://api.elevenlabs.io/"}, nil)
	u, err := d.buildURL(StreamConfig{VoiceID: "v 1", ModelID: "m", OutputFormat: audio.DefaultOutputFormat()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://api.elevenlabs.io/v1/text-to-speech/v%201/multi-stream-input?"), u)
	assert.Contains(t, u, "output_format=pcm_16000")
	assert.Contains(t, u, "inactivity_timeout=180")
}

func TestDecodeBase64Any(t *testing.T) {
	b, err := decodeBase64Any(base64.RawStdEncoding.EncodeToString([]byte("ab")))
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), b)

	_, err = decodeBase64Any("!!!")
	assert.Error(t, err)
}
