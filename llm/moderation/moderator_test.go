package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/teddyvoice/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordModerator(t *testing.T) {
	m := NewKeywordModerator([]string{"Scary", " knife ", ""})

	tests := []struct {
		name    string
		text    string
		allowed bool
		reason  string
	}{
		{"clean text", "tell me about rainbows", true, ""},
		{"case insensitive", "a SCARY story please", false, "keyword:scary"},
		{"punctuation boundary", "where is the knife?", false, "keyword:knife"},
		{"substring does not match", "knifeless butterknives", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := m.Check(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, v.Allowed)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestKeywordModerator_SetWords(t *testing.T) {
	m := NewKeywordModerator(nil)
	v, err := m.Check(context.Background(), "a scary story")
	require.NoError(t, err)
	assert.True(t, v.Allowed)

	m.SetWords([]string{"scary"})
	v, err = m.Check(context.Background(), "a scary story")
	require.NoError(t, err)
	assert.False(t, v.Allowed)

	m.SetWords(nil)
	v, err = m.Check(context.Background(), "a scary story")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

type stubModerator struct {
	verdict Verdict
	err     error
	calls   int
}

func (s *stubModerator) Name() string { return "stub" }

func (s *stubModerator) Check(context.Context, string) (Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

func TestChain(t *testing.T) {
	t.Run("first block wins", func(t *testing.T) {
		first := &stubModerator{verdict: Block("first")}
		second := &stubModerator{verdict: Block("second")}

		v, err := Chain{first, second}.Check(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, "first", v.Reason)
		assert.Equal(t, 0, second.calls)
	})

	t.Run("all allow", func(t *testing.T) {
		v, err := Chain{&stubModerator{verdict: Allow()}, AllowAll{}}.Check(context.Background(), "x")
		require.NoError(t, err)
		assert.True(t, v.Allowed)
	})

	t.Run("error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Chain{&stubModerator{err: boom}}.Check(context.Background(), "x")
		assert.ErrorIs(t, err, boom)
	})

	assert.Equal(t, "chain(stub,allow_all)", Chain{&stubModerator{}, AllowAll{}}.Name())
}

func TestOpenAIModerator_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/moderations", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req openAIModerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "omni-moderation-latest", req.Model)

		flagged := req.Input == "bad words"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "modr-1",
			"model": req.Model,
			"results": []map[string]any{{
				"flagged":    flagged,
				"categories": map[string]bool{"violence": flagged, "harassment": flagged, "hate": false},
			}},
		})
	}))
	defer srv.Close()

	m := NewOpenAIModerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})

	v, err := m.Check(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, v.Allowed)

	v, err = m.Check(context.Background(), "bad words")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, "harassment,violence", v.Reason)
}

func TestOpenAIModerator_ScoreThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{
				"flagged":         false,
				"categories":      map[string]bool{"violence": false},
				"category_scores": map[string]float64{"violence": 0.55, "hate": 0.01},
			}},
		})
	}))
	defer srv.Close()

	strict := NewOpenAIModerator(OpenAIConfig{BaseURL: srv.URL, ScoreThreshold: 0.5})
	v, err := strict.Check(context.Background(), "the dragon fights")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, "violence", v.Reason)

	lenient := NewOpenAIModerator(OpenAIConfig{BaseURL: srv.URL})
	v, err = lenient.Check(context.Background(), "the dragon fights")
	require.NoError(t, err)
	assert.True(t, v.Allowed, "threshold 0 trusts the flagged field")
}

func TestOpenAIModerator_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewOpenAIModerator(OpenAIConfig{BaseURL: srv.URL})
	_, err := m.Check(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}
