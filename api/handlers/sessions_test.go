package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/api"
	"github.com/BaSui01/teddyvoice/internal/cache"
	"github.com/BaSui01/teddyvoice/internal/pool"
	"github.com/BaSui01/teddyvoice/internal/server"
	"github.com/BaSui01/teddyvoice/session"
	"github.com/BaSui01/teddyvoice/synthesis"
	"github.com/BaSui01/teddyvoice/testutil/mocks"
	"github.com/BaSui01/teddyvoice/types"
)

func newTestRegistry(t *testing.T) *session.Registry {
	t.Helper()
	pipeline := session.NewPipeline(session.DefaultPipelineConfig(), session.Dependencies{
		Transcriber: mocks.NewMockTranscriber("hello", 0.9),
		Provider:    mocks.NewMockProvider().WithResponse("hi there"),
	}, nil)
	reg := session.NewRegistry(session.DefaultRegistryConfig(), pipeline, mocks.NewMockSynthesisDialer(), synthesis.DefaultConfig(), nil)
	t.Cleanup(reg.CloseAll)
	return reg
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

// decodeData 把 Response.Data 解到具体类型
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, dest))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestSessionHandler_List(t *testing.T) {
	reg := newTestRegistry(t)
	_, _, err := reg.Create(session.ConnInfo{DeviceID: "bear-1"})
	require.NoError(t, err)
	_, _, err = reg.Create(session.ConnInfo{DeviceID: "bear-2"})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewSessionHandler(reg, zap.NewNop()).Register(mux)

	w := serve(mux, http.MethodGet, "/api/v1/sessions")
	require.Equal(t, http.StatusOK, w.Code)

	var list api.SessionListResponse
	decodeData(t, w, &list)
	assert.Equal(t, 2, list.Total)
	assert.ElementsMatch(t, []string{"bear-1", "bear-2"}, []string{list.Sessions[0].DeviceID, list.Sessions[1].DeviceID})
}

func TestSessionHandler_Stats(t *testing.T) {
	reg := newTestRegistry(t)
	_, client, err := reg.Create(session.ConnInfo{DeviceID: "bear-1"})
	require.NoError(t, err)
	require.NoError(t, client.OnAudioFrame(make([]byte, 100)))

	mux := http.NewServeMux()
	NewSessionHandler(reg, nil, WithEventLogStats(func() pool.Stats {
		return pool.Stats{Completed: 7, Rejected: 1}
	}), WithConnStats(func() server.ConnStats {
		return server.ConnStats{Open: 2, Upgraded: 1}
	})).Register(mux)

	w := serve(mux, http.MethodGet, "/api/v1/sessions/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats api.SessionStatsResponse
	decodeData(t, w, &stats)
	assert.Equal(t, 1, stats.Registry.Active)
	assert.Equal(t, uint64(1), stats.Registry.Created)
	assert.Equal(t, 100, stats.Buffers.InputBytes, "below the chunk threshold the audio stays buffered")
	require.NotNil(t, stats.EventLog)
	assert.Equal(t, int64(7), stats.EventLog.Completed)
	require.NotNil(t, stats.Connections)
	assert.Equal(t, uint64(1), stats.Connections.Upgraded)
}

func TestSessionHandler_CacheStats(t *testing.T) {
	reg := newTestRegistry(t)

	tests := []struct {
		name    string
		fn      func(context.Context) (*cache.Stats, error)
		wantNil bool
	}{
		{
			name: "included",
			fn: func(context.Context) (*cache.Stats, error) {
				return &cache.Stats{Keys: 3, Connections: 2}, nil
			},
		},
		{
			name: "omitted on error",
			fn: func(context.Context) (*cache.Stats, error) {
				return nil, errors.New("ERR section not supported")
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			NewSessionHandler(reg, nil, WithCacheStats(tt.fn)).Register(mux)

			w := serve(mux, http.MethodGet, "/api/v1/sessions/stats")
			require.Equal(t, http.StatusOK, w.Code)

			var stats api.SessionStatsResponse
			decodeData(t, w, &stats)
			if tt.wantNil {
				assert.Nil(t, stats.Cache)
				return
			}
			require.NotNil(t, stats.Cache)
			assert.Equal(t, int64(3), stats.Cache.Keys)
		})
	}
}

func TestSessionHandler_GetAndDelete(t *testing.T) {
	reg := newTestRegistry(t)
	id, _, err := reg.Create(session.ConnInfo{DeviceID: "bear-1"})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewSessionHandler(reg, zap.NewNop()).Register(mux)

	w := serve(mux, http.MethodGet, "/api/v1/sessions/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	var stats session.ClientStats
	decodeData(t, w, &stats)
	assert.Equal(t, id, stats.ID)
	assert.Equal(t, session.StateIdle, stats.State)

	w = serve(mux, http.MethodDelete, "/api/v1/sessions/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, reg.Len())

	w = serve(mux, http.MethodDelete, "/api/v1/sessions/"+id)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrSessionNotFound), errorCode(t, w))

	w = serve(mux, http.MethodGet, "/api/v1/sessions/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_DeviceSession(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	cm, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cm.Close() })

	reg := newTestRegistry(t)
	_, client, err := reg.Create(session.ConnInfo{DeviceID: "bear-1"})
	require.NoError(t, err)
	require.NoError(t, cm.SaveDeviceSession(context.Background(), "bear-1", client.Stats()))

	mux := http.NewServeMux()
	NewSessionHandler(reg, zap.NewNop(), WithDeviceSessions(cm)).Register(mux)

	w := serve(mux, http.MethodGet, "/api/v1/devices/bear-1/last-session")
	require.Equal(t, http.StatusOK, w.Code)
	var resp api.DeviceSessionResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "bear-1", resp.DeviceID)
	assert.Equal(t, client.ID(), resp.Session.ID)

	w = serve(mux, http.MethodGet, "/api/v1/devices/bear-9/last-session")
	assert.Equal(t, http.StatusNotFound, w.Code)

	mr.SetError("READONLY")
	w = serve(mux, http.MethodGet, "/api/v1/devices/bear-1/last-session")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSessionHandler_DeviceRouteDisabled(t *testing.T) {
	mux := http.NewServeMux()
	NewSessionHandler(newTestRegistry(t), zap.NewNop()).Register(mux)

	w := serve(mux, http.MethodGet, "/api/v1/devices/bear-1/last-session")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummarize(t *testing.T) {
	list := []session.ClientStats{
		{Synthesis: synthesis.Stats{Connected: true, FramesRelayed: 3}},
		{Synthesis: synthesis.Stats{ReconnectAttempts: 2}},
		{Synthesis: synthesis.Stats{Terminal: true, ReconnectAttempts: 5}},
	}
	list[0].Input.Bytes = 10
	list[1].Output.DroppedBytesTotal = 4

	buffers, synth := api.Summarize(list)
	assert.Equal(t, 10, buffers.InputBytes)
	assert.Equal(t, uint64(4), buffers.OutputDroppedBytes)
	assert.Equal(t, api.SynthesisTotals{Connected: 1, Reconnecting: 1, Terminal: 1, FramesRelayed: 3}, synth)

}
