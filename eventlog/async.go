package eventlog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/internal/metrics"
	"github.com/BaSui01/teddyvoice/internal/pool"
	"github.com/BaSui01/teddyvoice/session"
)

// =============================================================================
// 📮 异步记录器
// =============================================================================

// AsyncConfig 异步写入配置
type AsyncConfig struct {
	// Workers 并发写入的工作者数
	Workers int `yaml:"workers" json:"workers" env:"WORKERS"`
	// QueueSize 待写入队列长度，满时丢弃新记录
	QueueSize int `yaml:"queue_size" json:"queue_size" env:"QUEUE_SIZE"`
	// WriteTimeout 单次写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
}

// DefaultAsyncConfig 返回默认配置
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		Workers:      2,
		QueueSize:    1024,
		WriteTimeout: 5 * time.Second,
	}
}

// Async 实现 session.Recorder：Record 只入队，由工作池写入 Store。
// 队列满或后端失败只计数与记录日志，从不阻塞回合。
type Async struct {
	store   Store
	pool    *pool.WorkerPool
	timeout time.Duration
	metrics *metrics.Collector
	logger  *zap.Logger
}

var _ session.Recorder = (*Async)(nil)

// NewAsync 创建异步记录器
func NewAsync(store Store, cfg AsyncConfig, m *metrics.Collector, logger *zap.Logger) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = Nop{}
	}
	d := DefaultAsyncConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}

	a := &Async{
		store:   store,
		timeout: cfg.WriteTimeout,
		metrics: m,
		logger:  logger.With(zap.String("component", "eventlog"), zap.String("store", store.Name())),
	}
	a.pool = pool.NewWorkerPool(pool.Config{
		MaxWorkers: cfg.Workers,
		QueueSize:  cfg.QueueSize,
		OnError: func(err error) {
			a.metrics.RecordEventLog("failed")
			a.logger.Warn("failed to write turn event", zap.Error(err))
		},
	})
	return a
}

// Record 实现 session.Recorder
func (a *Async) Record(ctx context.Context, sessionID string, turn session.Turn) {
	event := FromTurn(sessionID, turn)
	err := a.pool.Submit(context.WithoutCancel(ctx), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.store.Append(ctx, event); err != nil {
			return err
		}
		a.metrics.RecordEventLog("recorded")
		return nil
	})
	if err != nil {
		a.metrics.RecordEventLog("dropped")
		level := zap.WarnLevel
		if errors.Is(err, pool.ErrPoolClosed) {
			level = zap.DebugLevel
		}
		a.logger.Check(level, "turn event dropped").Write(
			zap.String("session_id", sessionID),
			zap.String("turn_id", turn.ID),
			zap.Error(err))
	}
}

// Store 返回底层存储，供查询接口使用
func (a *Async) Store() Store { return a.store }

// Stats 返回写入队列统计
func (a *Async) Stats() pool.Stats { return a.pool.Stats() }

// Close 等待已排队的记录写完，然后关闭存储
func (a *Async) Close() error {
	a.pool.Close()
	return a.store.Close()
}
