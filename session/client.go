package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/internal/metrics"
	"github.com/BaSui01/teddyvoice/llm/speech"
	"github.com/BaSui01/teddyvoice/synthesis"
	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 🧸 设备会话
// =============================================================================

// EventType 会话向设备推送的事件类型
type EventType string

const (
	EventControlResponse EventType = "control_response"
	EventTranscript      EventType = "transcript"
	EventTerminated      EventType = "terminated"
)

// Event 会话推送给网关的出站事件（音频走输出缓冲区，不走事件）
type Event struct {
	Type    EventType
	Command string
	Status  string
	Text    string
	Reply   string
	Reason  string
	Message string
}

// 控制命令
const (
	CommandMute         = "mute"
	CommandUnmute       = "unmute"
	CommandChangeVoice  = "change_voice"
	CommandStartStream  = "start_stream"
	CommandStopStream   = "stop_stream"
	CommandResetHistory = "reset_history"
)

// Command 设备控制消息
type Command struct {
	Name  string
	Value string
}

// ConnInfo 连接信息，由网关在建会话时提供
type ConnInfo struct {
	RemoteAddr string `json:"remote_addr,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// ClientConfig 会话配置
type ClientConfig struct {
	// InputMaxChunks 上行缓冲最大块数
	InputMaxChunks int `yaml:"input_max_chunks" json:"input_max_chunks" env:"INPUT_MAX_CHUNKS"`
	// OutputMaxChunks 下行缓冲最大块数
	OutputMaxChunks int `yaml:"output_max_chunks" json:"output_max_chunks" env:"OUTPUT_MAX_CHUNKS"`
	// EventBuffer 出站事件队列长度
	EventBuffer int `yaml:"event_buffer" json:"event_buffer" env:"EVENT_BUFFER"`
	// MaxQueuedText 排队等待的文本输入上限
	MaxQueuedText int `yaml:"max_queued_text" json:"max_queued_text" env:"MAX_QUEUED_TEXT"`
}

// DefaultClientConfig 返回默认会话配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		InputMaxChunks:  audio.DefaultMaxChunks,
		OutputMaxChunks: audio.DefaultMaxChunks,
		EventBuffer:     32,
		MaxQueuedText:   8,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.InputMaxChunks <= 0 {
		c.InputMaxChunks = d.InputMaxChunks
	}
	if c.OutputMaxChunks <= 0 {
		c.OutputMaxChunks = d.OutputMaxChunks
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.MaxQueuedText <= 0 {
		c.MaxQueuedText = d.MaxQueuedText
	}
	return c
}

// ClientStats 会话状态快照
type ClientStats struct {
	ID           string          `json:"id"`
	DeviceID     string          `json:"device_id,omitempty"`
	RemoteAddr   string          `json:"remote_addr,omitempty"`
	State        State           `json:"state"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActive   time.Time       `json:"last_active"`
	Muted        bool            `json:"muted"`
	Streaming    bool            `json:"streaming"`
	HistoryTurns int             `json:"history_turns"`
	Input        audio.Stats     `json:"input_buffer"`
	Output       audio.Stats     `json:"output_buffer"`
	Synthesis    synthesis.Stats `json:"synthesis"`
}

// Client 单个设备的会话状态：上下行缓冲、历史窗口、状态机与独占的合成连接。
// 同一会话同一时刻最多只有一个回合在执行。
type Client struct {
	id        string
	conn      ConnInfo
	cfg       ClientConfig
	createdAt time.Time

	input    *audio.RingBuffer
	output   *audio.RingBuffer
	history  *History
	link     *synthesis.Link
	pipeline *Pipeline
	voices   speech.VoiceResolver
	sm       *stateMachine
	logger   *zap.Logger
	metrics  *metrics.Collector

	lastActive atomic.Int64
	muted      atomic.Bool
	closed     atomic.Bool

	mu        sync.Mutex
	running   bool
	streaming bool
	textQueue []string

	onTerminate func(id string)
	events      chan Event
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	done        chan struct{}
	closeOnce   sync.Once
	termOnce    sync.Once
}

// ClientOptions 创建会话所需的组件
type ClientOptions struct {
	Config      ClientConfig
	Synthesis   synthesis.Config
	Dialer      speech.StreamDialer
	Voices      speech.VoiceResolver
	Pipeline    *Pipeline
	Metrics     *metrics.Collector
	Logger      *zap.Logger
	OnTerminate func(id string)
	// LinkOptions 额外的合成连接选项（测试中替换退避等待）
	LinkOptions []synthesis.Option
}

// NewClient 创建会话
func NewClient(id string, conn ConnInfo, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		id:          id,
		conn:        conn,
		cfg:         cfg,
		createdAt:   time.Now(),
		history:     NewHistory(opts.Pipeline.cfg.HistoryTurns),
		pipeline:    opts.Pipeline,
		voices:      opts.Voices,
		logger:      logger.With(zap.String("session_id", id)),
		metrics:     opts.Metrics,
		streaming:   true,
		onTerminate: opts.OnTerminate,
		events:      make(chan Event, cfg.EventBuffer),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	c.touch()

	c.input = audio.NewRingBuffer(cfg.InputMaxChunks, audio.WithDropHook(func(n int) {
		c.metrics.RecordBufferDrop("input", n)
	}))
	c.output = audio.NewRingBuffer(cfg.OutputMaxChunks, audio.WithDropHook(func(n int) {
		c.metrics.RecordBufferDrop("output", n)
	}))
	c.sm = newStateMachine(func(from, to State) {
		c.metrics.RecordStateTransition(string(from), string(to))
	})

	linkOpts := append([]synthesis.Option{
		synthesis.WithMetrics(opts.Metrics),
		synthesis.WithTerminalHandler(c.terminate),
	}, opts.LinkOptions...)
	c.link = synthesis.New(opts.Synthesis, opts.Dialer, c.output, c.logger, linkOpts...)

	return c
}

// voiceResolveTimeout 解析声音名称的单次查询上限
const voiceResolveTimeout = 5 * time.Second

// resolveVoice 把名称解析为 voice id；查询失败时按原值当作 voice id
func (c *Client) resolveVoice(value string) string {
	value = strings.TrimSpace(value)
	if c.voices == nil {
		return value
	}
	ctx, cancel := context.WithTimeout(c.ctx, voiceResolveTimeout)
	defer cancel()

	id, err := c.voices.ResolveVoice(ctx, value)
	if err != nil {
		c.logger.Warn("voice lookup failed, using value as voice id",
			zap.String("voice", value),
			zap.Error(err))
		return value
	}
	return id
}

// =============================================================================
// 📥 入站处理
// =============================================================================

// OnAudioFrame 追加一帧上行音频；回合执行中只累积不触发
func (c *Client) OnAudioFrame(data []byte) error {
	if c.closed.Load() {
		return types.NewError(types.ErrSessionClosed, "session closed")
	}
	c.touch()
	if len(data) == 0 {
		return nil
	}

	c.mu.Lock()
	streaming := c.streaming
	c.mu.Unlock()
	if !streaming {
		return nil
	}

	c.input.Write(audio.NewChunk(data, time.Now()))
	c.maybeStart()
	return nil
}

// OnText 排队一个文本回合，与音频回合共用同一个单飞闸门
func (c *Client) OnText(text string) error {
	if c.closed.Load() {
		return types.NewError(types.ErrSessionClosed, "session closed")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return types.NewError(types.ErrInvalidFrame, "text frame is empty")
	}
	c.touch()

	c.mu.Lock()
	if len(c.textQueue) >= c.cfg.MaxQueuedText {
		c.logger.Warn("text queue full, dropping oldest")
		c.textQueue = c.textQueue[1:]
	}
	c.textQueue = append(c.textQueue, text)
	c.mu.Unlock()

	c.maybeStart()
	return nil
}

// OnControlMessage 处理控制命令
func (c *Client) OnControlMessage(cmd Command) error {
	if c.closed.Load() {
		return types.NewError(types.ErrSessionClosed, "session closed")
	}
	c.touch()

	var status string
	switch cmd.Name {
	case CommandMute:
		c.muted.Store(true)
		c.output.Clear()
		status = "muted"
	case CommandUnmute:
		c.muted.Store(false)
		status = "unmuted"
	case CommandChangeVoice:
		if strings.TrimSpace(cmd.Value) == "" {
			return types.NewError(types.ErrInvalidFrame, "change_voice requires a voice id")
		}
		c.link.SetVoice(c.resolveVoice(cmd.Value))
		status = "voice_changed"
	case CommandStartStream:
		c.mu.Lock()
		c.streaming = true
		c.mu.Unlock()
		status = "started"
	case CommandStopStream:
		c.mu.Lock()
		c.streaming = false
		c.mu.Unlock()
		c.input.Clear()
		status = "stopped"
	case CommandResetHistory:
		c.history.Reset()
		status = "reset"
	default:
		return types.NewError(types.ErrInvalidFrame, "unknown control command: "+cmd.Name)
	}

	c.logger.Debug("control command applied", zap.String("command", cmd.Name), zap.String("status", status))
	c.emit(Event{Type: EventControlResponse, Command: cmd.Name, Status: status})
	return nil
}

// =============================================================================
// 🚦 单飞闸门
// =============================================================================

// maybeStart 在没有回合执行时启动下一个回合：优先处理排队的文本，其次是达到阈值的音频
func (c *Client) maybeStart() {
	c.mu.Lock()
	if c.running || c.closed.Load() {
		c.mu.Unlock()
		return
	}

	var (
		source Source
		text   string
	)
	switch {
	case len(c.textQueue) > 0:
		source = SourceText
		text = c.textQueue[0]
		c.textQueue = c.textQueue[1:]
	case c.input.Size() >= c.pipeline.cfg.ChunkThreshold:
		source = SourceAudio
		c.setState(StateBuffering)
	default:
		if c.input.Size() > 0 {
			c.setState(StateBuffering)
		}
		c.mu.Unlock()
		return
	}

	c.running = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.pipeline.run(c.ctx, c, source, text)

		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.maybeStart()
	}()
}

// =============================================================================
// 📤 出站处理
// =============================================================================

// NextOutput 取出下一帧待下发的音频；静音时清空缓冲并返回 false
func (c *Client) NextOutput() (audio.Chunk, bool) {
	if c.muted.Load() {
		c.output.Clear()
		return audio.Chunk{}, false
	}
	return c.output.ReadChunk()
}

// OutputReady 输出缓冲写入通知
func (c *Client) OutputReady() <-chan struct{} {
	return c.output.Notify()
}

// OutputFormat 下发音频的格式
func (c *Client) OutputFormat() audio.Format {
	return c.link.OutputFormat()
}

// Events 出站事件
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done 会话关闭后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event queue full, dropping event", zap.String("type", string(ev.Type)))
	}
}

// =============================================================================
// 🔒 生命周期
// =============================================================================

// terminate 合成连接不可恢复：通知设备后关闭会话
func (c *Client) terminate(err error) {
	c.termOnce.Do(func() {
		c.logger.Error("session terminated", zap.Error(err))
		c.emit(Event{
			Type:    EventTerminated,
			Reason:  string(types.GetErrorCode(err)),
			Message: c.pipeline.cfg.ApologyReply,
		})
		if c.onTerminate != nil {
			c.onTerminate(c.id)
		} else {
			c.Close()
		}
	})
}

// Close 取消进行中的回合、关闭合成连接并清空缓冲区，可重复调用
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed.Store(true)
		c.mu.Unlock()
		c.cancel()
		_ = c.link.Close()
		c.wg.Wait()
		c.input.Clear()
		c.output.Clear()
		close(c.done)
		c.logger.Info("session closed")
	})
}

// ID 会话 id
func (c *Client) ID() string { return c.id }

// Conn 连接信息
func (c *Client) Conn() ConnInfo { return c.conn }

// State 当前回合状态
func (c *Client) State() State { return c.sm.State() }

// History 历史窗口
func (c *Client) History() *History { return c.history }

// LastActive 最近一次收到设备帧的时间
func (c *Client) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Stats 返回会话状态快照
func (c *Client) Stats() ClientStats {
	c.mu.Lock()
	streaming := c.streaming
	c.mu.Unlock()

	return ClientStats{
		ID:           c.id,
		DeviceID:     c.conn.DeviceID,
		RemoteAddr:   c.conn.RemoteAddr,
		State:        c.sm.State(),
		CreatedAt:    c.createdAt,
		LastActive:   c.LastActive(),
		Muted:        c.muted.Load(),
		Streaming:    streaming,
		HistoryTurns: c.history.Len(),
		Input:        c.input.Stats(),
		Output:       c.output.Stats(),
		Synthesis:    c.link.Stats(),
	}
}

func (c *Client) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Client) setState(to State) {
	if err := c.sm.Transition(to); err != nil {
		c.logger.Warn("unexpected state transition", zap.Error(err))
	}
}
