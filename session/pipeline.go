package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/internal/metrics"
	"github.com/BaSui01/teddyvoice/llm"
	"github.com/BaSui01/teddyvoice/llm/moderation"
	"github.com/BaSui01/teddyvoice/llm/retry"
	"github.com/BaSui01/teddyvoice/llm/speech"
	"github.com/BaSui01/teddyvoice/llm/tokenizer"
	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 🔁 对话回合流水线
// =============================================================================

const (
	// DefaultFallbackReply 审核拦截时播放的固定回复
	DefaultFallbackReply = "Hmm, let's talk about something else! What's your favorite animal?"
	// DefaultApologyReply 回合失败时播放的固定道歉
	DefaultApologyReply = "Oops, I got a little confused. Can you say that again?"
)

// errNoise 低置信度或空转写，视为噪声而不是错误
var errNoise = errors.New("utterance treated as noise")

// PipelineConfig 流水线配置
type PipelineConfig struct {
	// ChunkThreshold 输入缓冲达到该字节数后开始转写
	ChunkThreshold int `yaml:"chunk_threshold" json:"chunk_threshold" env:"CHUNK_THRESHOLD"`
	// MaxUtteranceBytes 单次转写最多读取的字节数
	MaxUtteranceBytes int `yaml:"max_utterance_bytes" json:"max_utterance_bytes" env:"MAX_UTTERANCE_BYTES"`
	// MinConfidence 转写置信度下限
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence" env:"MIN_CONFIDENCE"`
	// TurnTimeout 单个回合停留在非 IDLE 状态的上限
	TurnTimeout time.Duration `yaml:"turn_timeout" json:"turn_timeout" env:"TURN_TIMEOUT"`
	// ApologyTimeout 播放道歉语的上限（回合超时后另行计时）
	ApologyTimeout time.Duration `yaml:"apology_timeout" json:"apology_timeout" env:"APOLOGY_TIMEOUT"`
	// HistoryTurns 保留的历史轮数
	HistoryTurns int `yaml:"history_turns" json:"history_turns" env:"HISTORY_TURNS"`
	// HistoryTokenBudget 发送给模型的历史 token 上限，0 表示不限
	HistoryTokenBudget int `yaml:"history_token_budget" json:"history_token_budget" env:"HISTORY_TOKEN_BUDGET"`
	// FallbackReply 审核拦截回复
	FallbackReply string `yaml:"fallback_reply" json:"fallback_reply" env:"FALLBACK_REPLY"`
	// ApologyReply 失败道歉语
	ApologyReply string `yaml:"apology_reply" json:"apology_reply" env:"APOLOGY_REPLY"`
	// InputFormat 设备上行音频格式
	InputFormat audio.Format `yaml:"input_format" json:"input_format" env:"INPUT_FORMAT"`
	// Retry 单次上游调用的重试策略
	Retry retry.RetryPolicy `yaml:"retry" json:"retry" env:"RETRY"`
}

// DefaultPipelineConfig 返回默认流水线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ChunkThreshold:     1024,
		MaxUtteranceBytes:  320000,
		MinConfidence:      0.5,
		TurnTimeout:        10 * time.Second,
		ApologyTimeout:     5 * time.Second,
		HistoryTurns:       5,
		HistoryTokenBudget: 1000,
		FallbackReply:      DefaultFallbackReply,
		ApologyReply:       DefaultApologyReply,
		InputFormat:        audio.DefaultInputFormat(),
		Retry:              *retry.DefaultRetryPolicy(),
	}
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	d := DefaultPipelineConfig()
	if c.ChunkThreshold <= 0 {
		c.ChunkThreshold = d.ChunkThreshold
	}
	if c.MaxUtteranceBytes <= 0 {
		c.MaxUtteranceBytes = d.MaxUtteranceBytes
	}
	if c.MaxUtteranceBytes < c.ChunkThreshold {
		c.MaxUtteranceBytes = c.ChunkThreshold
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = d.TurnTimeout
	}
	if c.ApologyTimeout <= 0 {
		c.ApologyTimeout = d.ApologyTimeout
	}
	if c.FallbackReply == "" {
		c.FallbackReply = d.FallbackReply
	}
	if c.ApologyReply == "" {
		c.ApologyReply = d.ApologyReply
	}
	if c.InputFormat.Encoding == "" {
		c.InputFormat = d.InputFormat
	}
	return c
}

// Dependencies 流水线依赖的外部协作方
type Dependencies struct {
	Transcriber speech.Transcriber
	Moderator   moderation.Moderator
	Provider    llm.Provider
	Recorder    Recorder
	Tokenizer   tokenizer.Tokenizer
	Metrics     *metrics.Collector
	Tracer      trace.Tracer
}

// Pipeline 执行 转写 → 审核 → 生成 → 审核 → 合成 的回合流程。
// Pipeline 本身无状态，所有会话共享一个实例。
type Pipeline struct {
	cfg         PipelineConfig
	transcriber speech.Transcriber
	moderator   moderation.Moderator
	provider    llm.Provider
	recorder    Recorder
	tokenizer   tokenizer.Tokenizer
	retryer     retry.Retryer
	metrics     *metrics.Collector
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewPipeline 创建流水线
func NewPipeline(cfg PipelineConfig, deps Dependencies, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	p := &Pipeline{
		cfg:         cfg,
		transcriber: deps.Transcriber,
		moderator:   deps.Moderator,
		provider:    deps.Provider,
		recorder:    deps.Recorder,
		tokenizer:   deps.Tokenizer,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
		logger:      logger.With(zap.String("component", "turn_pipeline")),
	}
	if p.moderator == nil {
		p.moderator = moderation.AllowAll{}
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	if p.tokenizer == nil {
		p.tokenizer = tokenizer.NewEstimatorTokenizer()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/BaSui01/teddyvoice/session")
	}
	policy := cfg.Retry
	p.retryer = retry.NewBackoffRetryer(&policy, p.logger)
	return p
}

// Config 返回生效的配置
func (p *Pipeline) Config() PipelineConfig {
	return p.cfg
}

// =============================================================================
// 🎯 回合执行
// =============================================================================

// run 执行一个回合。调用方（Client）保证同一会话同一时刻只有一个 run。
func (p *Pipeline) run(ctx context.Context, c *Client, source Source, text string) {
	turn := Turn{
		ID:        uuid.NewString(),
		SessionID: c.id,
		DeviceID:  c.conn.DeviceID,
		Source:    source,
		StartedAt: time.Now(),
	}

	turnCtx, cancel := context.WithTimeout(ctx, p.cfg.TurnTimeout)
	defer cancel()
	turnCtx, span := p.tracer.Start(turnCtx, "session.turn", trace.WithAttributes(
		attribute.String("session.id", c.id),
		attribute.String("turn.id", turn.ID),
		attribute.String("turn.source", string(source)),
	))
	defer span.End()

	logger := c.logger.With(zap.String("turn_id", turn.ID), zap.String("source", string(source)))

	err := p.execute(turnCtx, c, &turn, text)
	turn.Duration = time.Since(turn.StartedAt)

	switch {
	case err == nil:
		if turn.Outcome == "" {
			turn.Outcome = OutcomeCompleted
		}
		c.setState(StateIdle)
		if turn.Outcome == OutcomeCompleted {
			c.history.Append(turn.InputText, turn.ReplyText)
		}
		c.emit(Event{Type: EventTranscript, Text: turn.InputText, Reply: turn.ReplyText})
		logger.Info("turn completed",
			zap.String("outcome", string(turn.Outcome)),
			zap.Duration("duration", turn.Duration),
			zap.Int("frames", turn.Frames))

	case errors.Is(err, errNoise):
		turn.Outcome = OutcomeNoise
		c.setState(StateIdle)
		span.SetAttributes(attribute.String("turn.outcome", string(turn.Outcome)))
		p.metrics.RecordTurn(string(source), string(turn.Outcome), turn.Duration)
		logger.Debug("utterance ignored as noise", zap.Float64("confidence", turn.Confidence))
		return

	case ctx.Err() != nil:
		// 会话关闭，不再播放道歉语
		turn.Outcome = OutcomeFailed
		turn.Error = types.NewError(types.ErrSessionClosed, "session closed during turn").Error()
		c.setState(StateFailed)
		c.setState(StateIdle)
		span.SetStatus(codes.Error, "session closed")
		logger.Debug("turn aborted by session close")

	default:
		if errors.Is(err, context.DeadlineExceeded) && turnCtx.Err() != nil {
			err = types.NewError(types.ErrTurnTimeout, "turn exceeded time limit").WithCause(err)
			turn.Outcome = OutcomeTimeout
		} else {
			turn.Outcome = OutcomeFailed
		}
		turn.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(types.GetErrorCode(err)))
		logger.Warn("turn failed", zap.String("outcome", string(turn.Outcome)), zap.Error(err))

		c.setState(StateFailed)
		p.apologize(ctx, c, logger)
		c.setState(StateIdle)
	}

	span.SetAttributes(attribute.String("turn.outcome", string(turn.Outcome)))
	p.metrics.RecordTurn(string(source), string(turn.Outcome), turn.Duration)
	p.recorder.Record(context.WithoutCancel(ctx), c.id, turn)
}

func (p *Pipeline) execute(ctx context.Context, c *Client, turn *Turn, text string) error {
	input := text

	if turn.Source == SourceAudio {
		c.setState(StateTranscribing)
		pcm := c.input.Read(p.cfg.MaxUtteranceBytes)
		if len(pcm) == 0 {
			return errNoise
		}

		tr, err := retry.DoTyped(ctx, p.retryer, func(ctx context.Context) (*speech.Transcription, error) {
			return observe(ctx, p.metrics, p.transcriber.Name(), "transcribe", func(ctx context.Context) (*speech.Transcription, error) {
				return p.transcriber.Transcribe(ctx, pcm, p.cfg.InputFormat)
			})
		})
		if err != nil {
			return err
		}
		turn.Confidence = tr.Confidence
		turn.Language = tr.Language
		input = strings.TrimSpace(tr.Text)
		if input == "" || tr.Confidence < p.cfg.MinConfidence {
			return errNoise
		}
	}
	turn.InputText = input

	c.setState(StateModeratingInput)
	verdict, err := p.moderate(ctx, input)
	if err != nil {
		return err
	}
	turn.InputVerdict = verdict

	reply := p.cfg.FallbackReply
	if verdict.Allowed {
		c.setState(StateGenerating)
		history := c.history.MessagesWithin(p.tokenizer, p.cfg.HistoryTokenBudget)
		generated, err := retry.DoTyped(ctx, p.retryer, func(ctx context.Context) (string, error) {
			return observe(ctx, p.metrics, p.provider.Name(), "generate", func(ctx context.Context) (string, error) {
				return p.provider.Generate(ctx, history, input)
			})
		})
		if err != nil {
			return err
		}

		c.setState(StateModeratingOutput)
		replyVerdict, err := p.moderate(ctx, generated)
		if err != nil {
			return err
		}
		turn.ReplyVerdict = replyVerdict
		if replyVerdict.Allowed {
			reply = generated
		} else {
			turn.Outcome = OutcomeReplyBlocked
			c.logger.Info("reply blocked by moderation", zap.String("reason", replyVerdict.Reason))
		}
	} else {
		turn.Outcome = OutcomeInputBlocked
		turn.ReplyVerdict = moderation.Allow()
		c.logger.Info("input blocked by moderation", zap.String("reason", verdict.Reason))
	}
	turn.ReplyText = reply

	c.setState(StateSynthesizing)
	frames, dur, err := p.synthesize(ctx, c, reply)
	turn.Frames = frames
	turn.SynthesisDuration = dur
	return err
}

func (p *Pipeline) moderate(ctx context.Context, text string) (moderation.Verdict, error) {
	return retry.DoTyped(ctx, p.retryer, func(ctx context.Context) (moderation.Verdict, error) {
		return observe(ctx, p.metrics, p.moderator.Name(), "moderate", func(ctx context.Context) (moderation.Verdict, error) {
			return p.moderator.Check(ctx, text)
		})
	})
}

// synthesize 把文本交给会话的合成连接，等待服务端结束标记；音频帧在到达时已写入输出缓冲区
func (p *Pipeline) synthesize(ctx context.Context, c *Client, text string) (int, time.Duration, error) {
	start := time.Now()
	u, err := c.link.SendText(ctx, text)
	if err != nil {
		p.metrics.RecordProviderCall("synthesis", "synthesize", "error", time.Since(start))
		return 0, 0, err
	}
	if err := u.Wait(ctx); err != nil {
		c.link.Cancel(u, err)
		p.metrics.RecordProviderCall("synthesis", "synthesize", "error", time.Since(start))
		return u.Frames(), u.Duration(), err
	}
	p.metrics.RecordProviderCall("synthesis", "synthesize", "success", time.Since(start))
	return u.Frames(), u.Duration(), nil
}

// apologize 播放固定道歉语，不经过审核；失败只记录日志
func (p *Pipeline) apologize(ctx context.Context, c *Client, logger *zap.Logger) {
	apologyCtx, cancel := context.WithTimeout(ctx, p.cfg.ApologyTimeout)
	defer cancel()

	if _, _, err := p.synthesize(apologyCtx, c, p.cfg.ApologyReply); err != nil {
		logger.Warn("failed to deliver apology", zap.Error(err))
	}
}

// observe 记录一次上游调用的耗时与结果
func observe[T any](ctx context.Context, m *metrics.Collector, provider, kind string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(ctx)
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RecordProviderCall(provider, kind, status, time.Since(start))
	return v, err
}
