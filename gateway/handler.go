package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/teddyvoice/internal/ctxkeys"
	"github.com/BaSui01/teddyvoice/internal/metrics"
	"github.com/BaSui01/teddyvoice/internal/pool"
	"github.com/BaSui01/teddyvoice/session"
	"github.com/BaSui01/teddyvoice/types"
)

var (
	// errSessionEnded 会话在服务端结束（终止、空闲清理或服务停止）
	errSessionEnded = errors.New("session ended")
	// errDisconnected 设备主动断开
	errDisconnected = errors.New("device disconnected")
)

// Sessions 网关依赖的会话注册表
type Sessions interface {
	Create(conn session.ConnInfo) (string, *session.Client, error)
	Remove(id string) bool
}

// =============================================================================
// 🌐 设备流式网关
// =============================================================================

// Handler 把设备 WebSocket 连接接到会话上。
// 每个连接一个读协程和一个写协程，任一方退出都会结束连接并移除会话。
type Handler struct {
	cfg      Config
	sessions Sessions
	metrics  *metrics.Collector
	logger   *zap.Logger
	buffers  *pool.Pool[*bytes.Buffer]
}

// Option 网关选项
type Option func(*Handler)

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(h *Handler) { h.metrics = c }
}

// NewHandler 创建网关
func NewHandler(cfg Config, sessions Sessions, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		cfg:      cfg.withDefaults(),
		sessions: sessions,
		logger:   logger.With(zap.String("component", "gateway")),
		buffers:  pool.NewBufferPool(4 << 10),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Path 网关挂载路径
func (h *Handler) Path() string { return h.cfg.Path }

// ServeHTTP 建会话并升级为 WebSocket
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info := session.ConnInfo{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if id, ok := ctxkeys.DeviceID(r.Context()); ok {
		info.DeviceID = id
	} else {
		info.DeviceID = r.URL.Query().Get("device_id")
	}

	id, client, err := h.sessions.Create(info)
	if err != nil {
		h.reject(w, err)
		return
	}
	defer h.sessions.Remove(id)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	ws.SetReadLimit(h.cfg.MaxFrameBytes)

	c := &connection{
		h:       h,
		ws:      ws,
		id:      id,
		client:  client,
		limiter: h.newLimiter(),
		logger:  h.logger.With(zap.String("session_id", id), zap.String("device_id", info.DeviceID)),
	}
	c.serve(r.Context())
}

func (h *Handler) newLimiter() *rate.Limiter {
	if h.cfg.FrameRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(h.cfg.FrameRate), h.cfg.FrameBurst)
}

// reject 会话创建失败时以普通 HTTP 响应拒绝升级
func (h *Handler) reject(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if types.IsCode(err, types.ErrSessionLimit) {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "5")
	}
	h.logger.Warn("session rejected", zap.Int("status", status), zap.Error(err))

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorFrame(err))
}

// =============================================================================
// 🔌 单个连接
// =============================================================================

type connection struct {
	h       *Handler
	ws      *websocket.Conn
	id      string
	client  *session.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func (c *connection) serve(ctx context.Context) {
	c.logger.Info("device connected")
	if err := c.send(ctx, welcomeFrame(c.id, c.client.OutputFormat())); err != nil {
		c.logger.Warn("send welcome failed", zap.Error(err))
		_ = c.ws.CloseNow()
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.writeLoop(gctx) })
	if c.h.cfg.PingInterval > 0 {
		g.Go(func() error { return c.keepalive(gctx) })
	}
	err := g.Wait()

	switch {
	case errors.Is(err, errSessionEnded):
		c.logger.Info("session ended, connection closed")
	case errors.Is(err, errDisconnected):
		c.logger.Info("device disconnected")
	case errors.Is(err, context.Canceled):
		c.logger.Info("connection cancelled")
	default:
		c.logger.Warn("connection lost", zap.Error(err))
	}
	_ = c.ws.CloseNow()
}

// readLoop 读设备帧并分发给会话
func (c *connection) readLoop(ctx context.Context) error {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) != -1 {
				return errDisconnected
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if !c.limiter.Allow() {
			c.h.metrics.RecordFrame("in", "rate_limited")
			if err := c.sendError(ctx, types.NewError(types.ErrRateLimited, "frame rate exceeded")); err != nil {
				return err
			}
			continue
		}
		if err := c.dispatch(ctx, typ, data); err != nil {
			return err
		}
	}
}

func (c *connection) dispatch(ctx context.Context, typ websocket.MessageType, data []byte) error {
	if typ == websocket.MessageBinary {
		c.h.metrics.RecordFrame("in", frameBinaryAudio)
		return c.apply(ctx, c.client.OnAudioFrame(data))
	}

	frame, err := DecodeInbound(data)
	if err != nil {
		c.h.metrics.RecordFrame("in", "invalid")
		return c.sendError(ctx, err)
	}
	c.h.metrics.RecordFrame("in", string(frame.Type))

	switch frame.Type {
	case FramePing:
		return c.send(ctx, OutboundFrame{Type: FramePong})
	case FrameControl:
		return c.apply(ctx, c.client.OnControlMessage(session.Command{Name: frame.Command, Value: frame.Value}))
	case FrameText:
		return c.apply(ctx, c.client.OnText(frame.Text))
	case FrameAudio:
		pcm, err := DecodeAudioPayload(frame.Payload)
		if err != nil {
			return c.sendError(ctx, err)
		}
		return c.apply(ctx, c.client.OnAudioFrame(pcm))
	default:
		return c.sendError(ctx, types.NewError(types.ErrInvalidFrame, fmt.Sprintf("unknown frame type %q", frame.Type)))
	}
}

// apply 会话已关闭时交给写协程收尾，其余错误回给设备
func (c *connection) apply(ctx context.Context, err error) error {
	if err == nil || types.IsCode(err, types.ErrSessionClosed) {
		return nil
	}
	return c.sendError(ctx, err)
}

// writeLoop 按顺序下发输出缓冲区中的音频与会话事件
func (c *connection) writeLoop(ctx context.Context) error {
	for {
		if err := c.flushOutput(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.client.OutputReady():
		case ev := <-c.client.Events():
			// 先把已合成的音频发完，转写回显总在本轮音频之后
			if err := c.flushOutput(ctx); err != nil {
				return err
			}
			if err := c.send(ctx, eventFrame(ev)); err != nil {
				return err
			}
			if ev.Type == session.EventTerminated {
				return c.end()
			}
		case <-c.client.Done():
			c.drainEvents(ctx)
			return c.end()
		}
	}
}

func (c *connection) flushOutput(ctx context.Context) error {
	for {
		chunk, ok := c.client.NextOutput()
		if !ok {
			return nil
		}
		if err := c.send(ctx, audioFrame(chunk, c.client.OutputFormat())); err != nil {
			return err
		}
	}
}

// drainEvents 会话关闭后尽量送出剩余事件（例如 terminated）
func (c *connection) drainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-c.client.Events():
			if err := c.send(ctx, eventFrame(ev)); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *connection) end() error {
	_ = c.ws.Close(websocket.StatusNormalClosure, "session ended")
	return errSessionEnded
}

// keepalive 协议层心跳，设备无响应时断开
func (c *connection) keepalive(ctx context.Context) error {
	ticker := time.NewTicker(c.h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.h.cfg.PongTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("keepalive ping: %w", err)
			}
		}
	}
}

func (c *connection) sendError(ctx context.Context, err error) error {
	c.logger.Debug("frame rejected", zap.Error(err))
	return c.send(ctx, errorFrame(err))
}

func (c *connection) send(ctx context.Context, f OutboundFrame) error {
	buf := c.h.buffers.Get()
	defer c.h.buffers.Put(buf)

	data, err := encodeFrame(buf, f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Type, err)
	}

	wctx, cancel := context.WithTimeout(ctx, c.h.cfg.WriteTimeout)
	defer cancel()
	if err := c.ws.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	c.h.metrics.RecordFrame("out", string(f.Type))
	return nil
}
