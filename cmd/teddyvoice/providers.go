package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/config"
	"github.com/BaSui01/teddyvoice/llm"
	"github.com/BaSui01/teddyvoice/llm/moderation"
	"github.com/BaSui01/teddyvoice/llm/speech"
	"github.com/BaSui01/teddyvoice/llm/tokenizer"
)

// =============================================================================
// 🔌 上游服务组装
// =============================================================================

// upstreams 流水线与合成连接依赖的外部服务
type upstreams struct {
	transcriber speech.Transcriber
	moderator   moderation.Moderator
	keywords    *moderation.KeywordModerator
	provider    llm.Provider
	tokenizer   tokenizer.Tokenizer
	dialer      speech.StreamDialer
	voices      speech.VoiceResolver
}

func buildUpstreams(cfg *config.Config, logger *zap.Logger) (*upstreams, error) {
	transcriber, err := buildTranscriber(cfg.Transcription)
	if err != nil {
		return nil, err
	}

	keywords := moderation.NewKeywordModerator(cfg.Moderation.Blocklist)
	moderator, err := buildModerator(cfg.Moderation, keywords)
	if err != nil {
		return nil, err
	}

	if cfg.LLM.OpenAI.APIKey == "" {
		logger.Warn("llm api key not configured, every turn will fall back to the apology reply")
	}
	if cfg.Synthesis.ElevenLabs.APIKey == "" {
		logger.Warn("elevenlabs api key not configured, synthesis links will fail to connect")
	}

	elevenlabs := speech.NewElevenLabsDialer(cfg.Synthesis.ElevenLabs, logger)
	dialer, err := buildDialer(cfg, elevenlabs, logger)
	if err != nil {
		return nil, err
	}

	return &upstreams{
		transcriber: transcriber,
		moderator:   moderator,
		keywords:    keywords,
		provider:    llm.NewOpenAIProvider(cfg.LLM.OpenAI, cfg.LLM.SystemPrompt, logger),
		tokenizer:   tokenizer.New(cfg.LLM.OpenAI.Model),
		dialer:      dialer,
		voices:      elevenlabs,
	}, nil
}

// buildDialer 按 synthesis.fallback 在 ElevenLabs 之后追加备用合成服务
func buildDialer(cfg *config.Config, primary speech.StreamDialer, logger *zap.Logger) (speech.StreamDialer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Synthesis.Fallback)) {
	case "", "none":
		return primary, nil
	case "openai":
		tts := cfg.Synthesis.OpenAI
		if tts.APIKey == "" {
			tts.APIKey = cfg.LLM.OpenAI.APIKey
		}
		if tts.APIKey == "" {
			logger.Warn("openai tts fallback has no api key, synthesis runs without fallback")
			return primary, nil
		}
		return speech.NewFallbackDialer(logger,
			speech.NamedDialer{Name: "elevenlabs", Dialer: primary},
			speech.NamedDialer{Name: "openai", Dialer: speech.NewOpenAITTSDialer(tts, logger)},
		), nil
	default:
		return nil, fmt.Errorf("unknown synthesis fallback %q", cfg.Synthesis.Fallback)
	}
}

// buildTranscriber 按 transcription.provider 选择语音识别服务
func buildTranscriber(cfg config.TranscriptionConfig) (speech.Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return speech.NewOpenAISTTProvider(cfg.OpenAI), nil
	case "deepgram":
		return speech.NewDeepgramProvider(cfg.Deepgram), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

// buildModerator 按 moderation.providers 顺序组装审核链。
// 关键词审核器由调用方持有，热更新黑名单时直接替换。
func buildModerator(cfg config.ModerationConfig, keywords *moderation.KeywordModerator) (moderation.Moderator, error) {
	var chain moderation.Chain
	for _, name := range cfg.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "keyword":
			chain = append(chain, keywords)
		case "openai":
			chain = append(chain, moderation.NewOpenAIModerator(cfg.OpenAI))
		case "none", "":
		default:
			return nil, fmt.Errorf("unknown moderation provider %q", name)
		}
	}

	switch len(chain) {
	case 0:
		return moderation.AllowAll{}, nil
	case 1:
		return chain[0], nil
	default:
		return chain, nil
	}
}
