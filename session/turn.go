package session

import (
	"context"
	"time"

	"github.com/BaSui01/teddyvoice/llm/moderation"
)

// Source 回合输入来源
type Source string

const (
	SourceAudio Source = "audio"
	SourceText  Source = "text"
)

// Outcome 回合结果
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeInputBlocked Outcome = "input_blocked"
	OutcomeReplyBlocked Outcome = "reply_blocked"
	OutcomeFailed       Outcome = "failed"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeNoise        Outcome = "noise"
)

// Turn 一次请求/响应的临时记录，只用于写入事件日志
type Turn struct {
	ID                string             `json:"id"`
	SessionID         string             `json:"session_id"`
	DeviceID          string             `json:"device_id,omitempty"`
	Source            Source             `json:"source"`
	InputText         string             `json:"input_text"`
	Confidence        float64            `json:"confidence,omitempty"`
	Language          string             `json:"language,omitempty"`
	InputVerdict      moderation.Verdict `json:"input_verdict"`
	ReplyText         string             `json:"reply_text"`
	ReplyVerdict      moderation.Verdict `json:"reply_verdict"`
	SynthesisDuration time.Duration      `json:"synthesis_duration"`
	Frames            int                `json:"frames"`
	Outcome           Outcome            `json:"outcome"`
	Error             string             `json:"error,omitempty"`
	StartedAt         time.Time          `json:"started_at"`
	Duration          time.Duration      `json:"duration"`
}

// Recorder 会话事件日志。Record 必须是 fire-and-forget：不阻塞回合，也不返回错误
type Recorder interface {
	Record(ctx context.Context, sessionID string, turn Turn)
}

// RecorderFunc 函数适配器
type RecorderFunc func(ctx context.Context, sessionID string, turn Turn)

// Record 实现 Recorder
func (f RecorderFunc) Record(ctx context.Context, sessionID string, turn Turn) {
	f(ctx, sessionID, turn)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, Turn) {}
