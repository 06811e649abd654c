package audio

import (
	"sync"
)

// =============================================================================
// 🎙️ 环形音频缓冲区
// =============================================================================

// DefaultMaxChunks 默认最多缓存的块数
const DefaultMaxChunks = 8192

// RingBuffer 固定容量、线程安全的音频块缓冲区。
// 满时丢弃最旧的块（drop-oldest），优先保留最新的语音。
type RingBuffer struct {
	mu sync.Mutex

	chunks []Chunk
	head   int
	count  int
	size   int

	totalBytesWritten uint64
	droppedBytesTotal uint64
	droppedChunks     uint64

	onDrop func(bytes int)
	notify chan struct{}
}

// Stats 缓冲区统计信息
type Stats struct {
	Chunks            int    `json:"chunks"`
	MaxChunks         int    `json:"max_chunks"`
	Bytes             int    `json:"bytes"`
	TotalBytesWritten uint64 `json:"total_bytes_written"`
	DroppedBytesTotal uint64 `json:"dropped_bytes_total"`
	DroppedChunks     uint64 `json:"dropped_chunks"`
}

// Option 缓冲区选项
type Option func(*RingBuffer)

// WithDropHook 在每次淘汰旧块时回调（用于溢出指标），回调在锁内执行，必须很快返回
func WithDropHook(fn func(bytes int)) Option {
	return func(b *RingBuffer) { b.onDrop = fn }
}

// NewRingBuffer 创建最多容纳 maxChunks 个块的缓冲区
func NewRingBuffer(maxChunks int, opts ...Option) *RingBuffer {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	b := &RingBuffer{
		chunks: make([]Chunk, maxChunks),
		notify: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Write 追加一个块；已满时先淘汰最旧的块。从不阻塞，从不失败。
func (b *RingBuffer) Write(chunk Chunk) {
	if len(chunk.Data) == 0 {
		return
	}

	b.mu.Lock()
	if b.count == len(b.chunks) {
		b.evictOldestLocked()
	}
	tail := (b.head + b.count) % len(b.chunks)
	b.chunks[tail] = chunk
	b.count++
	b.size += len(chunk.Data)
	b.totalBytesWritten += uint64(len(chunk.Data))
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Read 从最旧的块开始取出至多 maxBytes 字节。
// 若某块只被读取一部分，剩余部分留在缓冲区头部。缓冲区为空时返回 nil。
func (b *RingBuffer) Read(maxBytes int) []byte {
	if maxBytes <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	want := maxBytes
	if want > b.size {
		want = b.size
	}
	out := make([]byte, 0, want)

	for b.count > 0 && len(out) < maxBytes {
		head := &b.chunks[b.head]
		need := maxBytes - len(out)
		if len(head.Data) <= need {
			out = append(out, head.Data...)
			b.size -= len(head.Data)
			b.popHeadLocked()
			continue
		}
		// 拆分：剩余部分作为新的头部
		out = append(out, head.Data[:need]...)
		head.Data = head.Data[need:]
		b.size -= need
	}

	return out
}

// ReadChunk 整块取出最旧的块，保留提供方的帧边界
func (b *RingBuffer) ReadChunk() (Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return Chunk{}, false
	}
	c := b.chunks[b.head]
	b.size -= len(c.Data)
	b.popHeadLocked()
	return c, true
}

// Size 返回当前缓存的字节数
func (b *RingBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Len 返回当前缓存的块数
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap 返回最大块数
func (b *RingBuffer) Cap() int {
	return len(b.chunks)
}

// Clear 清空缓冲区（会话结束时使用），累计统计保留
func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.chunks {
		b.chunks[i] = Chunk{}
	}
	b.head = 0
	b.count = 0
	b.size = 0
}

// Notify 返回写入唤醒信号，多次写入会合并为一次通知
func (b *RingBuffer) Notify() <-chan struct{} {
	return b.notify
}

// Stats 返回统计信息快照
func (b *RingBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Chunks:            b.count,
		MaxChunks:         len(b.chunks),
		Bytes:             b.size,
		TotalBytesWritten: b.totalBytesWritten,
		DroppedBytesTotal: b.droppedBytesTotal,
		DroppedChunks:     b.droppedChunks,
	}
}

// =============================================================================
// 🔧 内部方法（调用方持有锁）
// =============================================================================

func (b *RingBuffer) evictOldestLocked() {
	dropped := len(b.chunks[b.head].Data)
	b.size -= dropped
	b.droppedBytesTotal += uint64(dropped)
	b.droppedChunks++
	b.popHeadLocked()
	if b.onDrop != nil {
		b.onDrop(dropped)
	}
}

func (b *RingBuffer) popHeadLocked() {
	b.chunks[b.head] = Chunk{}
	b.head = (b.head + 1) % len(b.chunks)
	b.count--
}
