// MockSynthesisDialer 流式语音合成的测试模拟实现。
//
// 支持建连失败注入、脚本化音频帧、手动推帧与断线模拟。
package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/teddyvoice/llm/speech"
)

// ErrStreamBroken 模拟连接断开时 Recv 返回的错误
var ErrStreamBroken = errors.New("mock synthesis stream broken")

// FrameScript 根据提交的文本生成要推送的音频帧
type FrameScript func(text string) [][]byte

// --- MockSynthesisDialer ---

// MockSynthesisDialer 是 speech.StreamDialer 的模拟实现
type MockSynthesisDialer struct {
	mu sync.Mutex

	dialErrs []error
	script   FrameScript
	manual   bool

	dials   int
	configs []speech.StreamConfig
	streams []*MockSynthesisStream
}

// NewMockSynthesisDialer 创建模拟合成服务，默认每段文本推送一帧（文本字节）后结束
func NewMockSynthesisDialer() *MockSynthesisDialer {
	return &MockSynthesisDialer{
		script: func(text string) [][]byte { return [][]byte{[]byte(text)} },
	}
}

// WithDialErrors 依次消费的建连结果，nil 表示成功；耗尽后总是成功
func (d *MockSynthesisDialer) WithDialErrors(errs ...error) *MockSynthesisDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErrs = append(d.dialErrs, errs...)
	return d
}

// WithScript 设置帧脚本
func (d *MockSynthesisDialer) WithScript(script FrameScript) *MockSynthesisDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = script
	return d
}

// WithFrames 每段文本都推送相同的帧
func (d *MockSynthesisDialer) WithFrames(frames ...[]byte) *MockSynthesisDialer {
	return d.WithScript(func(string) [][]byte { return frames })
}

// WithManualFrames 不自动推帧，由测试调用 Emit 控制
func (d *MockSynthesisDialer) WithManualFrames() *MockSynthesisDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manual = true
	return d
}

// Dial 实现 speech.StreamDialer
func (d *MockSynthesisDialer) Dial(ctx context.Context, cfg speech.StreamConfig) (speech.SynthesisStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.configs = append(d.configs, cfg)
	if len(d.dialErrs) > 0 {
		err := d.dialErrs[0]
		d.dialErrs = d.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	s := newMockSynthesisStream(d.script, d.manual)
	d.streams = append(d.streams, s)
	return s, nil
}

// DialCount 返回建连次数（含失败）
func (d *MockSynthesisDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Configs 返回每次建连收到的配置
func (d *MockSynthesisDialer) Configs() []speech.StreamConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]speech.StreamConfig(nil), d.configs...)
}

// Streams 返回成功建立的连接
func (d *MockSynthesisDialer) Streams() []*MockSynthesisStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockSynthesisStream(nil), d.streams...)
}

// LastStream 返回最近一次成功建立的连接
func (d *MockSynthesisDialer) LastStream() *MockSynthesisStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// --- MockSynthesisStream ---

// SentText 记录一次 SendText
type SentText struct {
	ContextID string
	Text      string
}

// MockSynthesisStream 是 speech.SynthesisStream 的模拟实现
type MockSynthesisStream struct {
	mu sync.Mutex

	script  FrameScript
	manual  bool
	sendErr error

	queue  []speech.SynthesisEvent
	sent   []SentText
	broken error
	closed bool

	notify chan struct{}
	done   chan struct{}
}

func newMockSynthesisStream(script FrameScript, manual bool) *MockSynthesisStream {
	return &MockSynthesisStream{
		script: script,
		manual: manual,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// FailSends 让后续 SendText 返回 err
func (s *MockSynthesisStream) FailSends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// SendText 实现 speech.SynthesisStream
func (s *MockSynthesisStream) SendText(ctx context.Context, contextID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed || s.broken != nil {
		s.mu.Unlock()
		return ErrStreamBroken
	}
	if s.sendErr != nil {
		err := s.sendErr
		s.mu.Unlock()
		return err
	}
	s.sent = append(s.sent, SentText{ContextID: contextID, Text: text})
	if !s.manual {
		for _, frame := range s.script(text) {
			s.queue = append(s.queue, speech.SynthesisEvent{ContextID: contextID, Audio: frame})
		}
		s.queue = append(s.queue, speech.SynthesisEvent{ContextID: contextID, Final: true})
	}
	s.mu.Unlock()

	s.signal()
	return nil
}

// Emit 手动推送一帧
func (s *MockSynthesisStream) Emit(ev speech.SynthesisEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.signal()
}

// Recv 实现 speech.SynthesisStream
func (s *MockSynthesisStream) Recv(ctx context.Context) (speech.SynthesisEvent, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		if s.broken != nil {
			err := s.broken
			s.mu.Unlock()
			return speech.SynthesisEvent{}, err
		}
		if s.closed {
			s.mu.Unlock()
			return speech.SynthesisEvent{}, ErrStreamBroken
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return speech.SynthesisEvent{}, ctx.Err()
		}
	}
}

// Break 模拟连接意外断开
func (s *MockSynthesisStream) Break() {
	s.mu.Lock()
	if s.broken == nil {
		s.broken = ErrStreamBroken
	}
	s.mu.Unlock()
	s.signal()
}

// Close 实现 speech.SynthesisStream
func (s *MockSynthesisStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Closed 是否已关闭
func (s *MockSynthesisStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sent 返回已提交的文本
func (s *MockSynthesisStream) Sent() []SentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentText(nil), s.sent...)
}

func (s *MockSynthesisStream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
