package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/api"
	"github.com/BaSui01/teddyvoice/internal/cache"
	"github.com/BaSui01/teddyvoice/internal/pool"
	"github.com/BaSui01/teddyvoice/internal/server"
	"github.com/BaSui01/teddyvoice/session"
	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 🧸 会话管理
// =============================================================================

// SessionSource 会话注册表的只读视图与踢下线
type SessionSource interface {
	List() []session.ClientStats
	Stats() session.RegistryStats
	Get(id string) (*session.Client, bool)
	Remove(id string) bool
}

// DeviceSessions 设备最近一次会话摘要
type DeviceSessions interface {
	LastDeviceSession(ctx context.Context, deviceID string, dest any) error
}

// SessionHandler 会话管理处理器
type SessionHandler struct {
	sessions SessionSource
	devices  DeviceSessions
	eventLog func() pool.Stats
	conns    func() server.ConnStats
	cache    func(ctx context.Context) (*cache.Stats, error)
	logger   *zap.Logger
}

// SessionOption 会话处理器选项
type SessionOption func(*SessionHandler)

// WithDeviceSessions 启用 /api/v1/devices/{id}/last-session
func WithDeviceSessions(d DeviceSessions) SessionOption {
	return func(h *SessionHandler) { h.devices = d }
}

// WithEventLogStats 在统计中附带事件日志队列状态
func WithEventLogStats(fn func() pool.Stats) SessionOption {
	return func(h *SessionHandler) { h.eventLog = fn }
}

// WithConnStats 在统计中附带 HTTP 连接状态
func WithConnStats(fn func() server.ConnStats) SessionOption {
	return func(h *SessionHandler) { h.conns = fn }
}

// WithCacheStats 在统计中附带 Redis 服务端状态，读取失败时省略
func WithCacheStats(fn func(ctx context.Context) (*cache.Stats, error)) SessionOption {
	return func(h *SessionHandler) { h.cache = fn }
}

// NewSessionHandler 创建会话管理处理器
func NewSessionHandler(sessions SessionSource, logger *zap.Logger, opts ...SessionOption) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SessionHandler{
		sessions: sessions,
		logger:   logger.With(zap.String("component", "session_api")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 挂载路由
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/sessions", h.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/stats", h.HandleStats)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.HandleDelete)
	if h.devices != nil {
		mux.HandleFunc("GET /api/v1/devices/{id}/last-session", h.HandleDeviceSession)
	}
}

// HandleList 列出在线会话
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list := h.sessions.List()
	WriteSuccess(w, r, api.SessionListResponse{Sessions: list, Total: len(list)})
}

// HandleStats 汇总注册表、缓冲区、合成连接、设备连接与缓存状态
func (h *SessionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	buffers, synth := api.Summarize(h.sessions.List())
	resp := api.SessionStatsResponse{
		Registry:  h.sessions.Stats(),
		Buffers:   buffers,
		Synthesis: synth,
	}
	if h.eventLog != nil {
		s := h.eventLog()
		resp.EventLog = &s
	}
	if h.conns != nil {
		c := h.conns()
		resp.Connections = &c
	}
	if h.cache != nil {
		if cs, err := h.cache(r.Context()); err == nil {
			resp.Cache = cs
		} else {
			h.logger.Debug("cache stats unavailable", zap.Error(err))
		}
	}
	WriteSuccess(w, r, resp)
}

// HandleGet 返回单个会话快照
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	client, ok := h.sessions.Get(id)
	if !ok {
		WriteError(w, r, types.NewError(types.ErrSessionNotFound, "session not found: "+id), h.logger)
		return
	}
	WriteSuccess(w, r, client.Stats())
}

// HandleDelete 关闭会话，设备连接随之断开
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.sessions.Remove(id) {
		WriteError(w, r, types.NewError(types.ErrSessionNotFound, "session not found: "+id), h.logger)
		return
	}
	h.logger.Info("session removed via api", zap.String("session_id", id))
	WriteSuccess(w, r, map[string]string{"id": id, "status": "closed"})
}

// HandleDeviceSession 返回设备最近一次已结束会话的摘要
func (h *SessionHandler) HandleDeviceSession(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")

	var stats session.ClientStats
	err := h.devices.LastDeviceSession(r.Context(), deviceID, &stats)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		WriteError(w, r, types.NewError(types.ErrSessionNotFound, "no recorded session for device "+deviceID), h.logger)
		return
	case err != nil:
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.DeviceSessionResponse{DeviceID: deviceID, Session: stats})
}
