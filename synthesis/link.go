package synthesis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/internal/metrics"
	"github.com/BaSui01/teddyvoice/llm/retry"
	"github.com/BaSui01/teddyvoice/llm/speech"
	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 🔊 合成连接
// =============================================================================

// SleepFunc 重连等待函数，测试中可替换以观察退避间隔
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option 合成连接选项
type Option func(*Link)

// WithSleep 替换退避等待函数
func WithSleep(fn SleepFunc) Option {
	return func(l *Link) { l.sleep = fn }
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Link) { l.metrics = c }
}

// WithTerminalHandler 重连次数耗尽时回调，在独立 goroutine 中执行
func WithTerminalHandler(fn func(error)) Option {
	return func(l *Link) { l.onTerminal = fn }
}

// Stats 连接状态快照
type Stats struct {
	Connected         bool   `json:"connected"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	FramesRelayed     uint64 `json:"frames_relayed"`
	Pending           int    `json:"pending"`
	Terminal          bool   `json:"terminal"`
	Voice             string `json:"voice"`
}

// Link 维护到语音合成服务的唯一一条流式连接，
// 把文本送上去，把收到的音频帧按序写入会话的输出缓冲区。
type Link struct {
	cfg        Config
	dialer     speech.StreamDialer
	output     *audio.RingBuffer
	logger     *zap.Logger
	metrics    *metrics.Collector
	sleep      SleepFunc
	onTerminal func(error)

	mu           sync.Mutex
	stream       speech.SynthesisStream
	gen          uint64
	attempts     int
	terminal     error
	closed       bool
	voice        speech.StreamConfig
	voiceChanged bool
	pending      map[string]*Utterance

	frames    atomic.Uint64
	sf        singleflight.Group
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New 创建合成连接，不会立即建连
func New(cfg Config, dialer speech.StreamDialer, output *audio.RingBuffer, logger *zap.Logger, opts ...Option) *Link {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	l := &Link{
		cfg:     cfg,
		dialer:  dialer,
		output:  output,
		logger:  logger.With(zap.String("component", "synthesis_link")),
		sleep:   sleepContext,
		voice:   cfg.Voice,
		pending: make(map[string]*Utterance),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// 🎯 建连与重连
// =============================================================================

// Connect 确保存在一条可用连接。并发调用共享同一次建连过程；
// 连续失败达到上限后返回 RECONNECT_EXHAUSTED，此后不再重试。
func (l *Link) Connect(ctx context.Context) error {
	if connected, err := l.state(); connected || err != nil {
		return err
	}

	ch := l.sf.DoChan("connect", func() (any, error) {
		return nil, l.connectLoop()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Link) state() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, types.NewError(types.ErrSessionClosed, "synthesis link closed")
	}
	if l.terminal != nil {
		return false, l.terminal
	}
	return l.stream != nil, nil
}

func (l *Link) connectLoop() error {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return types.NewError(types.ErrSessionClosed, "synthesis link closed")
		}
		if l.terminal != nil {
			l.mu.Unlock()
			return l.terminal
		}
		if l.stream != nil {
			l.mu.Unlock()
			return nil
		}
		voice := l.voice
		l.voiceChanged = false
		l.mu.Unlock()

		stream, err := l.dialOnce(voice)
		if err == nil {
			if attachErr := l.attach(stream); attachErr != nil {
				_ = stream.Close()
				return attachErr
			}
			l.metrics.RecordSynthesisConnect("success")
			l.logger.Info("synthesis stream connected",
				zap.String("voice_id", voice.VoiceID),
				zap.String("model_id", voice.ModelID))
			return nil
		}

		l.mu.Lock()
		l.attempts++
		attempt := l.attempts
		if attempt >= l.cfg.MaxReconnectAttempts {
			terr := types.NewError(types.ErrReconnectExhausted,
				fmt.Sprintf("synthesis connect failed %d times", attempt)).WithCause(err)
			l.terminal = terr
			handler := l.onTerminal
			l.mu.Unlock()

			l.metrics.RecordSynthesisConnect("exhausted")
			l.logger.Error("synthesis reconnect attempts exhausted",
				zap.Int("attempts", attempt),
				zap.Error(err))
			if handler != nil {
				go handler(terr)
			}
			return terr
		}
		l.mu.Unlock()

		delay := retry.ExponentialDelay(l.cfg.BaseDelay, attempt)
		l.metrics.RecordSynthesisConnect("failure")
		l.logger.Warn("synthesis connect failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := l.sleep(l.ctx, delay); err != nil {
			return types.NewError(types.ErrSessionClosed, "synthesis link closed").WithCause(err)
		}
	}
}

func (l *Link) dialOnce(voice speech.StreamConfig) (speech.SynthesisStream, error) {
	ctx, cancel := context.WithTimeout(l.ctx, l.cfg.DialTimeout)
	defer cancel()
	return l.dialer.Dial(ctx, voice)
}

// attach 安装新连接并启动读取循环；旧连接（如有）先关闭
func (l *Link) attach(stream speech.SynthesisStream) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return types.NewError(types.ErrSessionClosed, "synthesis link closed")
	}
	old := l.stream
	l.stream = stream
	l.gen++
	gen := l.gen
	l.attempts = 0
	l.wg.Add(1)
	l.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	go l.readLoop(stream, gen)
	return nil
}

// detach 丢弃指定代的连接，并让其上未完成的合成以 CONNECTION_LOST 结束。
// 连接已被替换时返回 false。
func (l *Link) detach(stream speech.SynthesisStream, gen uint64, cause error) bool {
	l.mu.Lock()
	if l.stream == nil || l.stream != stream || l.gen != gen {
		l.mu.Unlock()
		return false
	}
	l.stream = nil
	pending := l.takePendingLocked()
	l.mu.Unlock()

	_ = stream.Close()
	lost := types.NewError(types.ErrConnectionLost, "synthesis stream lost").
		WithCause(cause).
		WithRetryable(true)
	for _, u := range pending {
		u.finish(lost)
	}
	return true
}

func (l *Link) takePendingLocked() []*Utterance {
	out := make([]*Utterance, 0, len(l.pending))
	for id, u := range l.pending {
		out = append(out, u)
		delete(l.pending, id)
	}
	return out
}

// =============================================================================
// 📥 读取循环
// =============================================================================

func (l *Link) readLoop(stream speech.SynthesisStream, gen uint64) {
	defer l.wg.Done()

	for {
		ev, err := stream.Recv(l.ctx)
		if err != nil {
			l.handleConnLoss(stream, gen, err)
			return
		}
		l.dispatch(ev)
	}
}

func (l *Link) dispatch(ev speech.SynthesisEvent) {
	l.mu.Lock()
	u := l.resolveLocked(ev.ContextID)
	if u == nil && ev.ContextID != "" {
		l.mu.Unlock()
		// 已放弃的 context（超时或断线前的残留帧）
		l.logger.Debug("dropping frame for stale context", zap.String("context_id", ev.ContextID))
		return
	}
	if u != nil && (ev.Final || ev.Err != "") {
		delete(l.pending, u.ID)
	}
	l.mu.Unlock()

	if len(ev.Audio) > 0 {
		l.output.Write(audio.NewChunk(ev.Audio, time.Now()))
		l.frames.Add(1)
		l.metrics.RecordSynthesisFrame()
		if u != nil {
			u.frames.Add(1)
		}
	}

	if u == nil {
		return
	}
	switch {
	case ev.Err != "":
		u.finish(types.NewPermanentError("synthesis", ev.Err, nil))
	case ev.Final:
		u.finish(nil)
	}
}

// resolveLocked 按 context id 找到合成请求；服务端不回 id 且只有一个请求时归属于它
func (l *Link) resolveLocked(contextID string) *Utterance {
	if contextID != "" {
		return l.pending[contextID]
	}
	if len(l.pending) == 1 {
		for _, u := range l.pending {
			return u
		}
	}
	return nil
}

func (l *Link) handleConnLoss(stream speech.SynthesisStream, gen uint64, err error) {
	if l.ctx.Err() != nil {
		_ = stream.Close()
		return
	}
	if !l.detach(stream, gen, err) {
		_ = stream.Close()
		return
	}

	l.logger.Warn("synthesis stream lost, scheduling reconnect", zap.Error(err))

	// 当前读取循环尚未 Done，此处 Add 不会与 Close 中的 Wait 竞争
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_, _, _ = l.sf.Do("connect", func() (any, error) {
			return nil, l.connectLoop()
		})
	}()
}

// =============================================================================
// 📤 发送文本
// =============================================================================

// SendText 提交一段文本进行合成，必要时先建连。
// 写入失败时丢弃连接并重连，只有重连耗尽后才返回错误。
func (l *Link) SendText(ctx context.Context, text string) (*Utterance, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "synthesis text is empty")
	}

	var lastErr error
	for i := 0; i < l.cfg.MaxReconnectAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.dropIfVoiceChanged()

		if err := l.Connect(ctx); err != nil {
			return nil, err
		}

		u, stream, gen, ok := l.register()
		if !ok {
			continue
		}

		if err := stream.SendText(ctx, u.ID, text); err != nil {
			l.unregister(u.ID)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			l.logger.Warn("synthesis write failed, reconnecting", zap.Error(err))
			l.detach(stream, gen, err)
			continue
		}
		return u, nil
	}

	return nil, types.NewError(types.ErrConnectionLost, "synthesis write failed").
		WithCause(lastErr).
		WithRetryable(true)
}

func (l *Link) register() (*Utterance, speech.SynthesisStream, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stream == nil {
		return nil, nil, 0, false
	}
	u := newUtterance(uuid.NewString())
	l.pending[u.ID] = u
	return u, l.stream, l.gen, true
}

func (l *Link) unregister(id string) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()
}

// Cancel 放弃一个未完成的合成请求，之后到达的该 context 帧会被丢弃
func (l *Link) Cancel(u *Utterance, err error) {
	if u == nil {
		return
	}
	l.unregister(u.ID)
	u.finish(err)
}

func (l *Link) dropIfVoiceChanged() {
	l.mu.Lock()
	if !l.voiceChanged || l.stream == nil || len(l.pending) > 0 {
		l.mu.Unlock()
		return
	}
	stream, gen := l.stream, l.gen
	l.mu.Unlock()

	l.logger.Info("voice changed, reconnecting synthesis stream")
	l.detach(stream, gen, nil)
}

// =============================================================================
// 🎛️ 控制与状态
// =============================================================================

// SetVoice 更换声音；当前连接在下一次发送前关闭，新连接使用新声音
func (l *Link) SetVoice(voiceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if voiceID == "" || voiceID == l.voice.VoiceID {
		return
	}
	l.voice.VoiceID = voiceID
	l.voiceChanged = true
}

// OutputFormat 当前声音配置的输出音频格式
func (l *Link) OutputFormat() audio.Format {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.voice.OutputFormat
}

// Err 返回终止错误（重连耗尽），未终止时返回 nil
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terminal
}

// Stats 返回连接状态快照
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Connected:         l.stream != nil,
		ReconnectAttempts: l.attempts,
		FramesRelayed:     l.frames.Load(),
		Pending:           len(l.pending),
		Terminal:          l.terminal != nil,
		Voice:             l.voice.VoiceID,
	}
}

// Close 停止读取循环并关闭上游连接，可重复调用
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		stream := l.stream
		l.stream = nil
		pending := l.takePendingLocked()
		l.mu.Unlock()

		l.cancel()
		if stream != nil {
			_ = stream.Close()
		}
		closedErr := types.NewError(types.ErrSessionClosed, "synthesis link closed")
		for _, u := range pending {
			u.finish(closedErr)
		}
		l.wg.Wait()
		l.logger.Debug("synthesis link closed")
	})
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
