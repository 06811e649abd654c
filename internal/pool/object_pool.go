package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool 基于 sync.Pool 的泛型对象池，带命中统计
type Pool[T any] struct {
	pool  sync.Pool
	reset func(*T)

	gets atomic.Int64
	puts atomic.Int64
	news atomic.Int64
}

// NewPool 创建对象池；reset 在对象放回前调用
func NewPool[T any](newFunc func() T, reset func(*T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get 取出一个对象
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put 放回对象
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil {
		p.reset(&obj)
	}
	p.pool.Put(obj)
}

// Stats 返回对象池统计
func (p *Pool[T]) Stats() ObjectStats {
	return ObjectStats{
		Gets: p.gets.Load(),
		Puts: p.puts.Load(),
		News: p.news.Load(),
	}
}

// ObjectStats 对象池统计
type ObjectStats struct {
	Gets int64 `json:"gets"`
	Puts int64 `json:"puts"`
	News int64 `json:"news"`
}

// HitRate 复用率
func (s ObjectStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// maxPooledBuffer 超过该容量的缓冲不放回，避免单个大帧长期占用内存
const maxPooledBuffer = 256 << 10

// NewBufferPool 创建音频帧编码用的字节缓冲池
func NewBufferPool(initialSize int) *Pool[*bytes.Buffer] {
	return NewPool(
		func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, initialSize)) },
		func(b **bytes.Buffer) {
			if (*b).Cap() > maxPooledBuffer {
				*b = bytes.NewBuffer(make([]byte, 0, initialSize))
				return
			}
			(*b).Reset()
		},
	)
}
