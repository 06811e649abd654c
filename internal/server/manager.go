package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/internal/tlsutil"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Manager HTTP 服务器管理器。除监听与优雅关闭外，还通过 ConnState
// 统计连接状态，设备流升级为 WebSocket 后计入 Upgraded。
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool

	conns     connTracker
	onUpgrade func(remote string)
}

// Config 服务器配置
type Config struct {
	// 监听地址
	Addr string `yaml:"addr" json:"addr"`

	// 请求头读取超时
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`

	// 读取超时，0 表示不限；设备 WebSocket 连接会持续数分钟
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 写入超时，0 表示不限
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
	}
}

// ManagerOption 管理器选项
type ManagerOption func(*Manager)

// WithUpgradeHook 在连接被接管（WebSocket 升级）时回调，参数为对端地址
func WithUpgradeHook(fn func(remote string)) ManagerOption {
	return func(m *Manager) { m.onUpgrade = fn }
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		errCh:  make(chan error, 1),
		config: config,
		logger: logger.With(zap.String("component", "http_server"), zap.String("addr", config.Addr)),
		conns:  connTracker{states: make(map[net.Conn]http.ConnState)},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.server = &http.Server{
		Addr:              config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		ConnState:         m.trackConn,
	}
	return m
}

// OnShutdown 注册关闭回调。Shutdown 不会等待已升级的 WebSocket 连接，
// 需要由回调主动结束它们。
func (m *Manager) OnShutdown(fn func()) {
	m.server.RegisterOnShutdown(fn)
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 启动服务器（非阻塞）
func (m *Manager) Start() error {
	listener, err := m.listen()
	if err != nil {
		return err
	}
	m.logger.Info("starting HTTP server", zap.String("listen", listener.Addr().String()))
	go m.serve(func() error { return m.server.Serve(listener) })
	return nil
}

// StartTLS 启动 HTTPS 服务器（非阻塞）
// 证书在监听之前加载，错误同步返回。
func (m *Manager) StartTLS(certFile, keyFile string) error {
	tlsConfig, err := tlsutil.ServerTLSConfig(certFile, keyFile)
	if err != nil {
		return err
	}
	listener, err := m.listen()
	if err != nil {
		return err
	}
	m.server.TLSConfig = tlsConfig
	m.logger.Info("starting HTTPS server",
		zap.String("listen", listener.Addr().String()),
		zap.String("cert", certFile))
	go m.serve(func() error { return m.server.ServeTLS(listener, "", "") })
	return nil
}

func (m *Manager) listen() (net.Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("server is closed")
	}
	if m.listener != nil {
		return nil, errors.New("server already started")
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener
	return listener, nil
}

func (m *Manager) serve(run func() error) {
	if err := run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("HTTP server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 优雅关闭服务器，仅排空普通 HTTP 请求
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	stats := m.conns.snapshot()
	m.logger.Info("shutting down HTTP server",
		zap.Int64("open_conns", stats.Open),
		zap.Uint64("upgraded_total", stats.Upgraded))

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()
	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}

	m.logger.Info("HTTP server stopped")
	return nil
}

// WaitForShutdown 阻塞直到收到退出信号、服务器异常退出或 ctx 取消，然后优雅关闭
func (m *Manager) WaitForShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		m.logger.Error("server exited unexpectedly", zap.Error(err))
	case <-ctx.Done():
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}

// Errors 服务器异步错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回实际监听地址；未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 检查服务器是否运行中
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// =============================================================================
// 🔌 连接统计
// =============================================================================

// ConnStats 连接状态快照。
// 被接管的连接不再由 http.Server 管理，只计入 Upgraded 累计值。
type ConnStats struct {
	Open     int64  `json:"open"`
	Idle     int64  `json:"idle"`
	Accepted uint64 `json:"accepted"`
	Upgraded uint64 `json:"upgraded"`
}

// ConnStats 返回当前连接统计
func (m *Manager) ConnStats() ConnStats {
	return m.conns.snapshot()
}

func (m *Manager) trackConn(c net.Conn, state http.ConnState) {
	if m.conns.observe(c, state) && m.onUpgrade != nil {
		m.onUpgrade(c.RemoteAddr().String())
	}
}

type connTracker struct {
	mu     sync.Mutex
	states map[net.Conn]http.ConnState
	stats  ConnStats
}

// observe 记录状态迁移，连接被接管时返回 true
func (t *connTracker) observe(c net.Conn, state http.ConnState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[c] == http.StateIdle {
		t.stats.Idle--
	}

	switch state {
	case http.StateNew:
		t.stats.Accepted++
		t.stats.Open++
		t.states[c] = state
	case http.StateIdle:
		t.stats.Idle++
		t.states[c] = state
	case http.StateHijacked:
		t.stats.Open--
		t.stats.Upgraded++
		delete(t.states, c)
		return true
	case http.StateClosed:
		t.stats.Open--
		delete(t.states, c)
	default:
		t.states[c] = state
	}
	return false
}

func (t *connTracker) snapshot() ConnStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
