package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/internal/ctxkeys"
	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   types.ErrorCode
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "limit must be a number"), http.StatusBadRequest, types.ErrInvalidRequest},
		{"unauthorized", types.NewError(types.ErrUnauthorized, "missing token"), http.StatusUnauthorized, types.ErrUnauthorized},
		{"not found", types.NewError(types.ErrSessionNotFound, "session not found"), http.StatusNotFound, types.ErrSessionNotFound},
		{"rate limited", types.NewError(types.ErrRateLimited, "slow down"), http.StatusTooManyRequests, types.ErrRateLimited},
		{"session limit", types.NewError(types.ErrSessionLimit, "full"), http.StatusServiceUnavailable, types.ErrSessionLimit},
		{"provider", types.NewTransientError("openai", "overloaded", nil), http.StatusBadGateway, types.ErrTransientProvider},
		{"explicit status", types.NewError(types.ErrInvalidRequest, "teapot").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot, types.ErrInvalidRequest},
		{"wrapped", errors.Join(errors.New("ctx"), types.NewError(types.ErrSessionClosed, "closed")), http.StatusGone, types.ErrSessionClosed},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, types.ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.expectedCode), resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteError_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, nil, errors.New("password=hunter2"), nil)

	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, nil, http.StatusForbidden, types.ErrUnauthorized, "device revoked", zap.NewNop())

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "device revoked", resp.Error.Message)
}

func TestQueryParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=10&bad=-1&word=abc&since=2026-01-02T03:04:05Z&when=yesterday", nil)

	v, err := queryInt(r, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = queryInt(r, "missing", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	_, err = queryInt(r, "bad", 50)
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
	_, err = queryInt(r, "word", 50)
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))

	ts, err := queryTime(r, "since")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())

	ts, err = queryTime(r, "missing")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	_, err = queryTime(r, "when")
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
}
