package session

import (
	"fmt"
	"sync"
)

// State 对话回合流水线状态
type State string

const (
	StateIdle             State = "IDLE"
	StateBuffering        State = "BUFFERING"
	StateTranscribing     State = "TRANSCRIBING"
	StateModeratingInput  State = "MODERATING_INPUT"
	StateGenerating       State = "GENERATING"
	StateModeratingOutput State = "MODERATING_OUTPUT"
	StateSynthesizing     State = "SYNTHESIZING"
	StateFailed           State = "FAILED"
)

// validTransitions 定义合法的状态转换，FAILED 可从任意状态进入
var validTransitions = map[State][]State{
	StateIdle:             {StateBuffering, StateModeratingInput},
	StateBuffering:        {StateTranscribing, StateModeratingInput, StateIdle},
	StateTranscribing:     {StateModeratingInput, StateIdle},
	StateModeratingInput:  {StateGenerating, StateSynthesizing},
	StateGenerating:       {StateModeratingOutput},
	StateModeratingOutput: {StateSynthesizing},
	StateSynthesizing:     {StateIdle},
	StateFailed:           {StateIdle},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	if to == StateFailed && from != StateFailed {
		return true
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// stateMachine 单写者状态机：只有持有回合的 goroutine 或持有会话锁的调度方会写入
type stateMachine struct {
	mu           sync.RWMutex
	current      State
	onTransition func(from, to State)
}

func newStateMachine(onTransition func(from, to State)) *stateMachine {
	return &stateMachine{current: StateIdle, onTransition: onTransition}
}

func (m *stateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *stateMachine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return ErrInvalidTransition{From: from, To: to}
	}
	m.current = to
	m.mu.Unlock()

	if m.onTransition != nil {
		m.onTransition(from, to)
	}
	return nil
}
