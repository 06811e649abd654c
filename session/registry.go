package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/internal/metrics"
	"github.com/BaSui01/teddyvoice/llm/speech"
	"github.com/BaSui01/teddyvoice/synthesis"
	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 📋 会话注册表
// =============================================================================

// RegistryConfig 注册表配置
type RegistryConfig struct {
	// MaxSessions 同时在线会话上限，0 表示不限
	MaxSessions int `yaml:"max_sessions" json:"max_sessions" env:"MAX_SESSIONS"`
	// IdleTimeout 无设备帧超过该时间的会话被清理
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"IDLE_TIMEOUT"`
	// SweepInterval 空闲清理周期
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval" env:"SWEEP_INTERVAL"`
	// Client 每个会话的缓冲配置
	Client ClientConfig `yaml:"client" json:"client" env:"CLIENT"`
}

// DefaultRegistryConfig 返回默认注册表配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxSessions:   1000,
		IdleTimeout:   5 * time.Minute,
		SweepInterval: 30 * time.Second,
		Client:        DefaultClientConfig(),
	}
}

// RegistryStats 注册表统计
type RegistryStats struct {
	Active      int    `json:"active"`
	MaxSessions int    `json:"max_sessions"`
	Created     uint64 `json:"created_total"`
	Closed      uint64 `json:"closed_total"`
	Rejected    uint64 `json:"rejected_total"`
	IdleClosed  uint64 `json:"idle_closed_total"`
}

type entry struct {
	client *Client
	once   sync.Once
}

// Registry 管理所有在线会话。id -> 会话映射由一把互斥锁保护，
// Remove 保证每个会话的 Close 只被调用一次。
type Registry struct {
	cfg       RegistryConfig
	pipeline  *Pipeline
	dialer    speech.StreamDialer
	voices    speech.VoiceResolver
	synthCfg  synthesis.Config
	linkOpts  []synthesis.Option
	metrics   *metrics.Collector
	logger    *zap.Logger
	base      *zap.Logger
	newID     func() string
	closeHook func(*Client)

	mu       sync.Mutex
	sessions map[string]*entry
	stats    RegistryStats
}

// RegistryOption 注册表选项
type RegistryOption func(*Registry)

// WithRegistryMetrics 设置指标收集器
func WithRegistryMetrics(c *metrics.Collector) RegistryOption {
	return func(r *Registry) { r.metrics = c }
}

// WithLinkOptions 为每个会话的合成连接追加选项
func WithLinkOptions(opts ...synthesis.Option) RegistryOption {
	return func(r *Registry) { r.linkOpts = append(r.linkOpts, opts...) }
}

// WithVoiceResolver 设置 change_voice 使用的声音名称解析
func WithVoiceResolver(v speech.VoiceResolver) RegistryOption {
	return func(r *Registry) { r.voices = v }
}

// WithIDGenerator 替换会话 id 生成函数
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) { r.newID = fn }
}

// WithCloseHook 会话关闭后回调（每个会话一次）
func WithCloseHook(fn func(*Client)) RegistryOption {
	return func(r *Registry) { r.closeHook = fn }
}

// NewRegistry 创建注册表
func NewRegistry(cfg RegistryConfig, pipeline *Pipeline, dialer speech.StreamDialer, synthCfg synthesis.Config, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultRegistryConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = d.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = d.SweepInterval
	}

	r := &Registry{
		cfg:      cfg,
		pipeline: pipeline,
		dialer:   dialer,
		synthCfg: synthCfg,
		logger:   logger.With(zap.String("component", "session_registry")),
		base:     logger,
		newID:    uuid.NewString,
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.stats.MaxSessions = cfg.MaxSessions
	return r
}

// Create 为新连接创建会话
func (r *Registry) Create(conn ConnInfo) (string, *Client, error) {
	r.mu.Lock()
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.stats.Rejected++
		r.mu.Unlock()
		r.metrics.SessionRejected()
		r.logger.Warn("session limit reached", zap.Int("max_sessions", r.cfg.MaxSessions))
		return "", nil, types.NewError(types.ErrSessionLimit, "too many active sessions").WithRetryable(true)
	}

	id := r.newID()
	for _, exists := r.sessions[id]; exists; _, exists = r.sessions[id] {
		id = r.newID()
	}

	client := NewClient(id, conn, ClientOptions{
		Config:      r.cfg.Client,
		Synthesis:   r.synthCfg,
		Dialer:      r.dialer,
		Voices:      r.voices,
		Pipeline:    r.pipeline,
		Metrics:     r.metrics,
		Logger:      r.base,
		OnTerminate: r.terminate,
		LinkOptions: r.linkOpts,
	})
	r.sessions[id] = &entry{client: client}
	r.stats.Created++
	r.mu.Unlock()

	r.metrics.SessionCreated()
	r.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("device_id", conn.DeviceID),
		zap.String("remote_addr", conn.RemoteAddr))
	return id, client, nil
}

// Get 按 id 查找会话
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Remove 移除并关闭会话。并发调用时只有一次真正执行 Close，返回 true。
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	closed := false
	e.once.Do(func() {
		e.client.Close()
		closed = true

		r.mu.Lock()
		r.stats.Closed++
		r.mu.Unlock()
		r.metrics.SessionClosed()
		if r.closeHook != nil {
			r.closeHook(e.client)
		}
		r.logger.Info("session removed", zap.String("session_id", id))
	})
	return closed
}

func (r *Registry) terminate(id string) {
	go r.Remove(id)
}

// Len 在线会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CheckCapacity 会话数已达上限时返回 SESSION_LIMIT，用作就绪检查
func (r *Registry) CheckCapacity(context.Context) error {
	if r.cfg.MaxSessions <= 0 {
		return nil
	}
	if n := r.Len(); n >= r.cfg.MaxSessions {
		return types.NewError(types.ErrSessionLimit, fmt.Sprintf("%d/%d sessions in use", n, r.cfg.MaxSessions))
	}
	return nil
}

// List 返回所有会话的状态快照，按创建时间排序
func (r *Registry) List() []ClientStats {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.sessions))
	for _, e := range r.sessions {
		clients = append(clients, e.client)
	}
	r.mu.Unlock()

	out := make([]ClientStats, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stats 返回注册表统计
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Active = len(r.sessions)
	return s
}

// =============================================================================
// 🧹 空闲清理
// =============================================================================

// Run 周期性清理空闲会话，直到 ctx 结束
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if n := r.SweepIdle(now); n > 0 {
				r.logger.Info("idle sessions swept", zap.Int("count", n))
			}
		}
	}
}

// SweepIdle 关闭在 now 之前空闲超过 IdleTimeout 的会话，返回关闭数量
func (r *Registry) SweepIdle(now time.Time) int {
	cutoff := now.Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []string
	for id, e := range r.sessions {
		if e.client.LastActive().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range idle {
		if r.Remove(id) {
			n++
			r.mu.Lock()
			r.stats.IdleClosed++
			r.mu.Unlock()
		}
	}
	return n
}

// CloseAll 关闭所有会话（服务停止时使用）
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Remove(id)
		}(id)
	}
	wg.Wait()
}
