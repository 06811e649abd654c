// Package pool 提供有界并发的工作池与对象池。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task 一个工作单元
type Task func(ctx context.Context) error

// WorkerPool 固定上限的工作 goroutine 池。队列满时 Submit 立即失败，
// 调用方据此决定丢弃还是降级，从不阻塞提交方。
type WorkerPool struct {
	maxWorkers int
	queue      chan taskWrapper

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	workerCount atomic.Int32
	activeCount atomic.Int32

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	idleTimeout time.Duration
	onError     func(error)
}

type taskWrapper struct {
	task Task
	ctx  context.Context
}

// Config 工作池配置
type Config struct {
	MaxWorkers  int           `yaml:"max_workers" json:"max_workers" env:"MAX_WORKERS"`
	QueueSize   int           `yaml:"queue_size" json:"queue_size" env:"QUEUE_SIZE"`
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"IDLE_TIMEOUT"`
	// OnError 任务失败或 panic 时回调（在工作 goroutine 中执行）
	OnError func(error) `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxWorkers:  4,
		QueueSize:   1024,
		IdleTimeout: 60 * time.Second,
	}
}

// NewWorkerPool 创建工作池
func NewWorkerPool(cfg Config) *WorkerPool {
	d := DefaultConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = d.MaxWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = d.IdleTimeout
	}
	return &WorkerPool{
		maxWorkers:  cfg.MaxWorkers,
		queue:       make(chan taskWrapper, cfg.QueueSize),
		idleTimeout: cfg.IdleTimeout,
		onError:     cfg.OnError,
	}
}

// Submit 非阻塞提交任务；池已关闭返回 ErrPoolClosed，队列满返回 ErrPoolFull
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.rejected.Add(1)
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	select {
	case p.queue <- taskWrapper{task: task, ctx: ctx}:
		p.ensureWorker()
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *WorkerPool) ensureWorker() {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case w, ok := <-p.queue:
			if !ok {
				p.workerCount.Add(-1)
				return
			}
			p.activeCount.Add(1)
			err := p.execute(w)
			p.activeCount.Add(-1)

			if err != nil {
				p.failed.Add(1)
				if p.onError != nil {
					p.onError(err)
				}
			} else {
				p.completed.Add(1)
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.idleTimeout)

		case <-timer.C:
			// 空闲退出，至少保留一个工作者
			if cur := p.workerCount.Load(); cur > 1 && p.workerCount.CompareAndSwap(cur, cur-1) {
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

func (p *WorkerPool) execute(w taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return w.task(w.ctx)
}

// Close 停止接收任务，等待已排队的任务执行完毕
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats 返回工作池统计
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats 工作池统计
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
