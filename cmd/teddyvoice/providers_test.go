package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/config"
	"github.com/BaSui01/teddyvoice/llm/moderation"
	"github.com/BaSui01/teddyvoice/llm/speech"
)

func TestBuildTranscriber(t *testing.T) {
	tests := []struct {
		provider string
		want     any
		wantErr  bool
	}{
		{provider: "", want: &speech.OpenAISTTProvider{}},
		{provider: "openai", want: &speech.OpenAISTTProvider{}},
		{provider: "Deepgram", want: &speech.DeepgramProvider{}},
		{provider: "vosk", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.DefaultTranscriptionConfig()
			cfg.Provider = tt.provider
			got, err := buildTranscriber(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestBuildModerator(t *testing.T) {
	keywords := moderation.NewKeywordModerator([]string{"scary"})

	t.Run("empty allows everything", func(t *testing.T) {
		m, err := buildModerator(config.ModerationConfig{}, keywords)
		require.NoError(t, err)
		assert.IsType(t, moderation.AllowAll{}, m)
	})

	t.Run("single keyword moderator is not wrapped", func(t *testing.T) {
		m, err := buildModerator(config.ModerationConfig{Providers: []string{"keyword", "none"}}, keywords)
		require.NoError(t, err)
		assert.Same(t, keywords, m)

		v, err := m.Check(context.Background(), "a scary story")
		require.NoError(t, err)
		assert.False(t, v.Allowed)
	})

	t.Run("chain keeps order", func(t *testing.T) {
		m, err := buildModerator(config.ModerationConfig{
			Providers: []string{"keyword", "openai"},
			OpenAI:    moderation.DefaultOpenAIConfig(),
		}, keywords)
		require.NoError(t, err)
		chain, ok := m.(moderation.Chain)
		require.True(t, ok)
		require.Len(t, chain, 2)
		assert.Equal(t, "keyword", chain[0].Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := buildModerator(config.ModerationConfig{Providers: []string{"perspective"}}, keywords)
		assert.Error(t, err)
	})
}

func TestBuildUpstreams(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Moderation.Blocklist = []string{"monster"}

	u, err := buildUpstreams(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, u.transcriber)
	assert.NotNil(t, u.provider)
	assert.NotNil(t, u.tokenizer)
	assert.NotNil(t, u.dialer)
	assert.NotNil(t, u.voices)

	// 热更新黑名单后，审核链立即生效
	v, err := u.keywords.Check(context.Background(), "a monster")
	require.NoError(t, err)
	assert.False(t, v.Allowed)

	u.keywords.SetWords(nil)
	v, err = u.keywords.Check(context.Background(), "a monster")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

func TestBuildDialer(t *testing.T) {
	primary := speech.NewElevenLabsDialer(speech.DefaultElevenLabsConfig(), nil)

	t.Run("openai fallback reuses llm key", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.OpenAI.APIKey = "sk-test"

		d, err := buildDialer(cfg, primary, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &speech.FallbackDialer{}, d)
	})

	t.Run("no key keeps primary only", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.OpenAI.APIKey = ""
		cfg.Synthesis.OpenAI.APIKey = ""

		d, err := buildDialer(cfg, primary, zap.NewNop())
		require.NoError(t, err)
		assert.Same(t, primary, d)
	})

	t.Run("none disables fallback", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.OpenAI.APIKey = "sk-test"
		cfg.Synthesis.Fallback = "none"

		d, err := buildDialer(cfg, primary, zap.NewNop())
		require.NoError(t, err)
		assert.Same(t, primary, d)
	})

	t.Run("unknown fallback", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Synthesis.Fallback = "gtts"

		_, err := buildDialer(cfg, primary, zap.NewNop())
		assert.Error(t, err)
	})
}
