package synthesis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Utterance 一次提交给合成服务的文本（一个 context），
// 在服务端发出结束标记、连接断开或链路关闭时完成
type Utterance struct {
	ID        string
	StartedAt time.Time

	done       chan struct{}
	once       sync.Once
	err        error
	finishedAt time.Time
	frames     atomic.Int64
}

func newUtterance(id string) *Utterance {
	return &Utterance{
		ID:        id,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Wait 阻塞直到合成结束或 ctx 结束
func (u *Utterance) Wait(ctx context.Context) error {
	select {
	case <-u.done:
		return u.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 合成结束时关闭
func (u *Utterance) Done() <-chan struct{} {
	return u.done
}

// Frames 已写入输出缓冲区的帧数
func (u *Utterance) Frames() int {
	return int(u.frames.Load())
}

// Duration 从提交到结束的耗时；未结束时返回已经过的时间
func (u *Utterance) Duration() time.Duration {
	select {
	case <-u.done:
		return u.finishedAt.Sub(u.StartedAt)
	default:
		return time.Since(u.StartedAt)
	}
}

func (u *Utterance) finish(err error) {
	u.once.Do(func() {
		u.err = err
		u.finishedAt = time.Now()
		close(u.done)
	})
}
