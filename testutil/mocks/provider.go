// MockProvider 对话回合上游协作方的测试模拟实现。
//
// 覆盖语言模型、语音转写、内容审核与事件日志，支持固定响应、错误注入与调用记录。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/teddyvoice/audio"
	"github.com/BaSui01/teddyvoice/llm/moderation"
	"github.com/BaSui01/teddyvoice/llm/speech"
	"github.com/BaSui01/teddyvoice/types"
)

// --- MockProvider（语言模型）---

// GenerateCall 记录单次 Generate 调用
type GenerateCall struct {
	History    []types.Message
	NewMessage string
}

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	response string
	errs     []error
	delay    time.Duration
	fn       func(ctx context.Context, history []types.Message, newMessage string) (string, error)

	calls []GenerateCall
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{response: "Mock response"}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithErrors 依次返回的错误，nil 表示该次成功；耗尽后总是成功
func (m *MockProvider) WithErrors(errs ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

// WithDelay 设置响应延迟，延迟期间响应 ctx 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithGenerateFunc 设置自定义 Generate 函数
func (m *MockProvider) WithGenerateFunc(fn func(ctx context.Context, history []types.Message, newMessage string) (string, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// Generate 实现 llm.Provider
func (m *MockProvider) Generate(ctx context.Context, history []types.Message, newMessage string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, GenerateCall{
		History:    append([]types.Message(nil), history...),
		NewMessage: newMessage,
	})
	delay, fn, response := m.delay, m.fn, m.response
	var err error
	if len(m.errs) > 0 {
		err = m.errs[0]
		m.errs = m.errs[1:]
	}
	m.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return "", err
	}
	if fn != nil {
		return fn(ctx, history, newMessage)
	}
	if err != nil {
		return "", err
	}
	return response, nil
}

// Calls 返回调用记录
func (m *MockProvider) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerateCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// --- MockTranscriber ---

// MockTranscriber 是 speech.Transcriber 的模拟实现
type MockTranscriber struct {
	mu sync.Mutex

	result  speech.Transcription
	errs    []error
	delay   time.Duration
	gate    chan struct{}
	started chan struct{}

	inputs [][]byte
}

// NewMockTranscriber 创建返回固定文本与置信度的转写模拟
func NewMockTranscriber(text string, confidence float64) *MockTranscriber {
	return &MockTranscriber{
		result:  speech.Transcription{Text: text, Confidence: confidence, Language: "en"},
		started: make(chan struct{}, 64),
	}
}

// WithErrors 依次返回的错误
func (m *MockTranscriber) WithErrors(errs ...error) *MockTranscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

// WithDelay 设置转写延迟
func (m *MockTranscriber) WithDelay(d time.Duration) *MockTranscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithGate 每次转写阻塞直到 gate 收到一个值（或 ctx 结束）
func (m *MockTranscriber) WithGate(gate chan struct{}) *MockTranscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
	return m
}

// Started 每次 Transcribe 被调用时收到一个信号
func (m *MockTranscriber) Started() <-chan struct{} {
	return m.started
}

// Name 实现 speech.Transcriber
func (m *MockTranscriber) Name() string { return "mock_stt" }

// Transcribe 实现 speech.Transcriber
func (m *MockTranscriber) Transcribe(ctx context.Context, data []byte, _ audio.Format) (*speech.Transcription, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, append([]byte(nil), data...))
	delay, gate, result := m.delay, m.gate, m.result
	var err error
	if len(m.errs) > 0 {
		err = m.errs[0]
		m.errs = m.errs[1:]
	}
	m.mu.Unlock()

	select {
	case m.started <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := wait(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Inputs 返回每次收到的音频
func (m *MockTranscriber) Inputs() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.inputs...)
}

// CallCount 返回调用次数
func (m *MockTranscriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// --- MockModerator ---

// MockModerator 是 moderation.Moderator 的模拟实现
type MockModerator struct {
	mu sync.Mutex

	check func(text string) (moderation.Verdict, error)
	texts []string
}

// NewMockModerator 创建放行所有内容的审核模拟
func NewMockModerator() *MockModerator {
	return &MockModerator{
		check: func(string) (moderation.Verdict, error) { return moderation.Allow(), nil },
	}
}

// BlockAll 拦截所有内容
func (m *MockModerator) BlockAll(reason string) *MockModerator {
	return m.WithCheck(func(string) (moderation.Verdict, error) { return moderation.Block(reason), nil })
}

// BlockText 只拦截与 text 完全相同的内容
func (m *MockModerator) BlockText(text, reason string) *MockModerator {
	return m.WithCheck(func(s string) (moderation.Verdict, error) {
		if s == text {
			return moderation.Block(reason), nil
		}
		return moderation.Allow(), nil
	})
}

// WithCheck 设置自定义审核函数
func (m *MockModerator) WithCheck(fn func(text string) (moderation.Verdict, error)) *MockModerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.check = fn
	return m
}

// Name 实现 moderation.Moderator
func (m *MockModerator) Name() string { return "mock_moderation" }

// Check 实现 moderation.Moderator
func (m *MockModerator) Check(_ context.Context, text string) (moderation.Verdict, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	fn := m.check
	m.mu.Unlock()
	return fn(text)
}

// Texts 返回审核过的文本
func (m *MockModerator) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
