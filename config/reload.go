// 配置文件热更新。
//
// 轮询配置文件的修改时间，内容变化后重新走一遍加载流程
// （默认值 → YAML → 环境变量 → 校验），校验失败时保留当前配置。
package config

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 新配置生效后调用，old 与 new 均不可修改
type ReloadCallback func(old, new *Config)

// Reloader 监听单个配置文件并热更新。
// 只有日志级别与关键词黑名单在运行期生效，其余字段变化仅记录日志，需重启。
type Reloader struct {
	path     string
	loader   *Loader
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	current   *Config
	checksum  uint64
	modTime   time.Time
	callbacks []ReloadCallback
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// ReloaderOption Reloader 选项
type ReloaderOption func(*Reloader)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) { r.interval = d }
}

// WithReloaderLogger 设置日志
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) { r.logger = logger }
}

// WithReloadLoader 替换加载器（环境变量前缀、校验器）
func WithReloadLoader(l *Loader) ReloaderOption {
	return func(r *Reloader) { r.loader = l }
}

// NewReloader 创建热更新器，initial 为启动时已加载的配置
func NewReloader(path string, initial *Config, opts ...ReloaderOption) (*Reloader, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	if initial == nil {
		return nil, errors.New("initial config is required")
	}
	r := &Reloader{
		path:     path,
		interval: time.Second,
		logger:   zap.NewNop(),
		current:  initial,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = NewLoader()
	}
	r.loader.WithConfigPath(path)
	r.logger = r.logger.With(zap.String("component", "config_reloader"))

	if data, err := os.ReadFile(path); err == nil {
		r.checksum = checksum(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info, err := os.Stat(path); err == nil {
		r.modTime = info.ModTime()
	}
	return r, nil
}

// OnReload 注册热更新回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start 启动轮询，ctx 结束或 Stop 时退出
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("reloader already running")
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	go r.pollLoop(ctx, r.stop, r.done)
	r.logger.Info("config reloader started",
		zap.String("path", r.path),
		zap.Duration("interval", r.interval))
	return nil
}

// Stop 停止轮询并等待退出
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()
	<-done
}

func (r *Reloader) pollLoop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			info, err := os.Stat(r.path)
			if err != nil || !info.ModTime().After(r.modTime) {
				continue
			}
			r.modTime = info.ModTime()
			if _, err := r.Reload(); err != nil {
				r.logger.Error("config reload failed, keeping current config", zap.Error(err))
			}
		}
	}
}

// Reload 重新加载配置文件；内容未变化时返回 false
func (r *Reloader) Reload() (bool, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return false, fmt.Errorf("read config file: %w", err)
	}
	sum := checksum(data)

	r.mu.RLock()
	unchanged := sum == r.checksum
	r.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	next, err := r.loader.Load()
	if err != nil {
		return false, err
	}
	if err := next.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	old := r.current
	r.current = next
	r.checksum = sum
	callbacks := slices.Clone(r.callbacks)
	r.mu.Unlock()

	for _, field := range RestartRequired(old, next) {
		r.logger.Warn("config change requires restart", zap.String("section", field))
	}
	r.logger.Info("config reloaded", zap.String("path", r.path))

	for _, cb := range callbacks {
		r.notify(cb, old, next)
	}
	return true, nil
}

func (r *Reloader) notify(cb ReloadCallback, old, next *Config) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("config reload callback panicked", zap.Any("panic", rec))
		}
	}()
	cb(old, next)
}

// RestartRequired 列出发生变化但不能热更新的配置段
func RestartRequired(old, next *Config) []string {
	if old == nil || next == nil {
		return nil
	}
	a, b := *old, *next
	a.Log.Level, b.Log.Level = "", ""
	a.Moderation.Blocklist, b.Moderation.Blocklist = nil, nil

	var sections []string
	for _, s := range []struct {
		name string
		x, y any
	}{
		{"server", a.Server, b.Server},
		{"gateway", a.Gateway, b.Gateway},
		{"session", a.Session, b.Session},
		{"pipeline", a.Pipeline, b.Pipeline},
		{"synthesis", a.Synthesis, b.Synthesis},
		{"llm", a.LLM, b.LLM},
		{"moderation", a.Moderation, b.Moderation},
		{"transcription", a.Transcription, b.Transcription},
		{"eventlog", a.EventLog, b.EventLog},
		{"redis", a.Redis, b.Redis},
		{"database", a.Database, b.Database},
		{"mongo", a.Mongo, b.Mongo},
		{"auth", a.Auth, b.Auth},
		{"log", a.Log, b.Log},
		{"telemetry", a.Telemetry, b.Telemetry},
	} {
		if fmt.Sprintf("%+v", s.x) != fmt.Sprintf("%+v", s.y) {
			sections = append(sections, s.name)
		}
	}
	return sections
}

func checksum(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}
