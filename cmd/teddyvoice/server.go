package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/api"
	"github.com/BaSui01/teddyvoice/api/handlers"
	"github.com/BaSui01/teddyvoice/config"
	"github.com/BaSui01/teddyvoice/eventlog"
	"github.com/BaSui01/teddyvoice/gateway"
	"github.com/BaSui01/teddyvoice/internal/cache"
	"github.com/BaSui01/teddyvoice/internal/database"
	"github.com/BaSui01/teddyvoice/internal/metrics"
	"github.com/BaSui01/teddyvoice/internal/migration"
	"github.com/BaSui01/teddyvoice/internal/server"
	"github.com/BaSui01/teddyvoice/internal/telemetry"
	"github.com/BaSui01/teddyvoice/session"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 teddyvoice 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	logLevel   zap.AtomicLevel
	namespace  string

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施
	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers
	cache            *cache.Manager
	db               *database.PoolManager
	mongo            *mongo.Client

	// 会话
	upstreams *upstreams
	eventLog  *eventlog.Async
	registry  *session.Registry

	// Handlers
	gatewayHandler *gateway.Handler
	healthHandler  *handlers.HealthHandler
	sessionHandler *handlers.SessionHandler
	turnHandler    *handlers.TurnHandler

	// 热更新
	reloader *config.Reloader

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		logLevel:   level,
		namespace:  "teddyvoice",
		ctx:        ctx,
		cancel:     cancel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务。失败时调用方应执行 Shutdown 释放已打开的连接。
func (s *Server) Start() error {
	// 1. 指标与追踪
	s.metricsCollector = metrics.NewCollector(s.namespace, s.logger)
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	// 2. 存储
	if err := s.initStorage(); err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}

	// 3. 事件日志
	if err := s.initEventLog(); err != nil {
		return fmt.Errorf("failed to init event log: %w", err)
	}

	// 4. 会话注册表与流水线
	if err := s.initSessions(); err != nil {
		return fmt.Errorf("failed to init sessions: %w", err)
	}

	// 5. Handlers
	s.initHandlers()

	// 6. 热更新
	if err := s.initReloader(); err != nil {
		return fmt.Errorf("failed to init config reloader: %w", err)
	}

	// 7. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 8. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("stream_path", s.gatewayHandler.Path()),
		zap.Bool("auth_enabled", s.cfg.Auth.Enabled),
		zap.Bool("hot_reload_enabled", s.reloader != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStorage 连接 Redis、数据库与 MongoDB。已启用但不可达的后端会让启动失败。
func (s *Server) initStorage() error {
	if rc := s.cfg.Redis; rc.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = rc.Addr
		cacheCfg.Password = rc.Password
		cacheCfg.DB = rc.DB
		cacheCfg.PoolSize = rc.PoolSize
		cacheCfg.MinIdleConns = rc.MinIdleConns
		cacheCfg.DefaultTTL = rc.DefaultTTL
		cacheCfg.HealthCheckInterval = rc.HealthCheckInterval

		m, err := cache.NewManager(cacheCfg, s.logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		s.cache = m
	}

	if dc := s.cfg.Database; dc.Enabled {
		if dc.AutoMigrate {
			if err := s.autoMigrate(); err != nil {
				return fmt.Errorf("database migrate: %w", err)
			}
		}
		pm, err := database.Open(dc.Driver, dc.DSN(), dc.Pool, s.logger,
			database.WithMetrics(s.metricsCollector, dc.Driver))
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		s.db = pm
		s.logger.Info("Database connected", zap.String("driver", dc.Driver))
	}

	if mc := s.cfg.Mongo; mc.Enabled {
		timeout := mc.ConnectTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client, err := mongo.Connect(options.Client().ApplyURI(mc.URI).SetConnectTimeout(timeout))
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		s.mongo = client

		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			return fmt.Errorf("mongo ping: %w", err)
		}
		s.logger.Info("MongoDB connected", zap.String("database", mc.Database))
	}
	return nil
}

// autoMigrate 启动时应用内嵌迁移
func (s *Server) autoMigrate() error {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	info, err := migration.EnsureSchema(ctx, s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	s.logger.Info("Database schema up to date",
		zap.Uint("version", info.CurrentVersion),
		zap.Int("migrations", info.TotalMigrations),
	)
	return nil
}

// initEventLog 组装事件日志存储与异步写入池
func (s *Server) initEventLog() error {
	backends := eventlog.Backends{DB: s.db}
	if s.cache != nil {
		backends.Redis = s.cache.Client()
	}
	if s.mongo != nil {
		backends.Mongo = s.mongo.Database(s.cfg.Mongo.Database)
	}

	store, err := eventlog.Build(s.cfg.EventLog, backends, s.logger)
	if err != nil {
		return err
	}
	s.eventLog = eventlog.NewAsync(store, s.cfg.EventLog.Async, s.metricsCollector, s.logger)
	return nil
}

// initSessions 组装上游服务、流水线与会话注册表，并启动空闲清理
func (s *Server) initSessions() error {
	ups, err := buildUpstreams(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.upstreams = ups

	pipeline := session.NewPipeline(s.cfg.Pipeline, session.Dependencies{
		Transcriber: ups.transcriber,
		Moderator:   ups.moderator,
		Provider:    ups.provider,
		Recorder:    s.eventLog,
		Tokenizer:   ups.tokenizer,
		Metrics:     s.metricsCollector,
		Tracer:      s.telemetry.Tracer(),
	}, s.logger)

	opts := []session.RegistryOption{
		session.WithRegistryMetrics(s.metricsCollector),
		session.WithVoiceResolver(ups.voices),
	}
	if s.cache != nil {
		opts = append(opts, session.WithCloseHook(s.saveDeviceSession))
	}
	s.registry = session.NewRegistry(s.cfg.Session, pipeline, ups.dialer, s.cfg.Synthesis.Link, s.logger, opts...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.registry.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("session sweeper stopped", zap.Error(err))
		}
	}()

	if err := s.telemetry.ObserveSessions(
		func() int64 { return int64(s.registry.Len()) },
		s.bufferedAudioBytes,
	); err != nil {
		s.logger.Warn("OTel session gauges unavailable", zap.Error(err))
	}

	s.logger.Info("Session pipeline ready",
		zap.String("transcriber", ups.transcriber.Name()),
		zap.String("moderator", ups.moderator.Name()),
		zap.String("provider", ups.provider.Name()),
		zap.String("tokenizer", ups.tokenizer.Name()),
		zap.Int("max_sessions", s.cfg.Session.MaxSessions),
	)
	return nil
}

// bufferedAudioBytes 所有在线会话上下行缓冲区的字节合计
func (s *Server) bufferedAudioBytes() int64 {
	buffers, _ := api.Summarize(s.registry.List())
	return int64(buffers.InputBytes + buffers.OutputBytes)
}

// saveDeviceSession 会话结束时缓存设备最近一次会话摘要
func (s *Server) saveDeviceSession(c *session.Client) {
	stats := c.Stats()
	if stats.DeviceID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.SaveDeviceSession(ctx, stats.DeviceID, stats); err != nil {
		s.logger.Warn("failed to cache device session",
			zap.String("session_id", stats.ID),
			zap.String("device_id", stats.DeviceID),
			zap.Error(err))
	}
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.gatewayHandler = gateway.NewHandler(s.cfg.Gateway, s.registry, s.logger,
		gateway.WithMetrics(s.metricsCollector))

	// 只有会话容量决定是否接收新设备；存储只影响事件日志与设备缓存
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewCheck("capacity", s.registry.CheckCapacity))
	if s.cache != nil {
		s.healthHandler.RegisterAdvisory(handlers.NewCheck("redis", s.cache.Ping))
	}
	if s.db != nil {
		s.healthHandler.RegisterAdvisory(handlers.NewCheck("database", s.db.Ping))
	}
	if s.mongo != nil {
		s.healthHandler.RegisterAdvisory(handlers.NewCheck("mongo", func(ctx context.Context) error {
			return s.mongo.Ping(ctx, readpref.Primary())
		}))
	}

	sessionOpts := []handlers.SessionOption{
		handlers.WithEventLogStats(s.eventLog.Stats),
		// httpManager 在 startHTTPServer 中创建，请求到达时已就绪
		handlers.WithConnStats(func() server.ConnStats { return s.httpManager.ConnStats() }),
	}
	if s.cache != nil {
		sessionOpts = append(sessionOpts,
			handlers.WithDeviceSessions(s.cache),
			handlers.WithCacheStats(s.cache.GetStats))
	}
	s.sessionHandler = handlers.NewSessionHandler(s.registry, s.logger, sessionOpts...)
	s.turnHandler = handlers.NewTurnHandler(s.eventLog.Store(), s.logger)

	s.logger.Info("Handlers initialized")
}

// initReloader 监听配置文件，热更新日志级别与审核黑名单
func (s *Server) initReloader() error {
	if s.configPath == "" {
		return nil
	}

	r, err := config.NewReloader(s.configPath, s.cfg,
		config.WithReloaderLogger(s.logger),
		config.WithReloadLoader(config.NewLoader().WithStrictFields()))
	if err != nil {
		return err
	}
	r.OnReload(s.applyReload)
	if err := r.Start(s.ctx); err != nil {
		return err
	}
	s.reloader = r
	return nil
}

// applyReload 应用可热更新的配置项，其余变化提示需要重启
func (s *Server) applyReload(old, next *config.Config) {
	level := parseLevel(next.Log.Level)
	if level != s.logLevel.Level() {
		s.logLevel.SetLevel(level)
		s.logger.Info("log level changed", zap.String("level", level.String()))
	}

	s.upstreams.keywords.SetWords(next.Moderation.Blocklist)
	s.logger.Info("moderation blocklist reloaded", zap.Int("words", len(next.Moderation.Blocklist)))

	if sections := config.RestartRequired(old, next); len(sections) > 0 {
		s.logger.Warn("configuration changed in sections that require a restart",
			zap.Strings("sections", sections))
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 设备语音流
	mux.Handle(s.gatewayHandler.Path(), s.gatewayHandler)

	// 家长端管理 API
	s.sessionHandler.Register(mux)
	s.turnHandler.Register(mux)

	return mux
}

// handler 构建中间件链
func (s *Server) handler() http.Handler {
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Auth.Enabled {
		skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, s.gatewayHandler.Path(), skipAuthPaths, s.logger))
	} else {
		s.logger.Warn("device authentication disabled, device ids are taken from the device_id query parameter")
	}
	middlewares = append(middlewares,
		RateLimiter(s.ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))

	return Chain(s.routes(), middlewares...)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	serverConfig := server.Config{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(s.handler(), serverConfig, s.logger,
		server.WithUpgradeHook(func(remote string) {
			s.logger.Debug("device stream upgraded", zap.String("remote_addr", remote))
		}))
	// 已升级的设备连接不受 http.Server.Shutdown 管理，关闭时主动结束所有会话
	s.httpManager.OnShutdown(s.registry.CloseAll)

	if s.cfg.Server.TLSCertFile != "" {
		return s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	}
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器；metrics_port 为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ShutdownTimeout:   s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(s.ctx)
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 0. 就绪探针转为 draining，停止后台循环
	if s.healthHandler != nil {
		s.healthHandler.SetDraining(true)
	}
	s.cancel()
	if s.reloader != nil {
		s.reloader.Stop()
	}

	// 1. 关闭 HTTP 服务器（回调中关闭所有会话）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.registry != nil {
		s.registry.CloseAll()
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 等待后台 goroutine
	s.wg.Wait()

	// 4. 写完排队中的事件日志，再关闭存储
	if s.eventLog != nil {
		if err := s.eventLog.Close(); err != nil {
			s.logger.Error("Event log shutdown error", zap.Error(err))
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Disconnect(ctx); err != nil {
			s.logger.Error("MongoDB disconnect error", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Database close error", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}

	// 5. 刷新追踪与指标导出
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
