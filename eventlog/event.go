package eventlog

import (
	"time"

	"github.com/BaSui01/teddyvoice/session"
)

// TurnEvent 事件日志中的一条回合记录，供家长端查看交互历史
type TurnEvent struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id" bson:"_id"`
	SessionID       string    `gorm:"size:36;index:idx_turn_events_session" json:"session_id" bson:"session_id"`
	DeviceID        string    `gorm:"size:128;index:idx_turn_events_device" json:"device_id,omitempty" bson:"device_id,omitempty"`
	Source          string    `gorm:"size:16" json:"source" bson:"source"`
	InputText       string    `gorm:"type:text" json:"input_text" bson:"input_text"`
	ReplyText       string    `gorm:"type:text" json:"reply_text" bson:"reply_text"`
	Outcome         string    `gorm:"size:32;index:idx_turn_events_outcome" json:"outcome" bson:"outcome"`
	InputBlocked    bool      `json:"input_blocked" bson:"input_blocked"`
	InputReason     string    `gorm:"size:255" json:"input_reason,omitempty" bson:"input_reason,omitempty"`
	ReplyBlocked    bool      `json:"reply_blocked" bson:"reply_blocked"`
	ReplyReason     string    `gorm:"size:255" json:"reply_reason,omitempty" bson:"reply_reason,omitempty"`
	Confidence      float64   `json:"confidence" bson:"confidence"`
	Language        string    `gorm:"size:16" json:"language,omitempty" bson:"language,omitempty"`
	Frames          int       `json:"frames" bson:"frames"`
	SynthesisMillis int64     `gorm:"column:synthesis_ms" json:"synthesis_ms" bson:"synthesis_ms"`
	DurationMillis  int64     `gorm:"column:duration_ms" json:"duration_ms" bson:"duration_ms"`
	Error           string    `gorm:"type:text" json:"error,omitempty" bson:"error,omitempty"`
	StartedAt       time.Time `gorm:"index:idx_turn_events_started" json:"started_at" bson:"started_at"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}

// TableName 表名
func (TurnEvent) TableName() string { return "turn_events" }

// FromTurn 把会话回合转换为事件日志记录
func FromTurn(sessionID string, t session.Turn) TurnEvent {
	if sessionID == "" {
		sessionID = t.SessionID
	}
	return TurnEvent{
		ID:              t.ID,
		SessionID:       sessionID,
		DeviceID:        t.DeviceID,
		Source:          string(t.Source),
		InputText:       t.InputText,
		ReplyText:       t.ReplyText,
		Outcome:         string(t.Outcome),
		InputBlocked:    t.Outcome == session.OutcomeInputBlocked,
		InputReason:     t.InputVerdict.Reason,
		ReplyBlocked:    t.Outcome == session.OutcomeReplyBlocked,
		ReplyReason:     t.ReplyVerdict.Reason,
		Confidence:      t.Confidence,
		Language:        t.Language,
		Frames:          t.Frames,
		SynthesisMillis: t.SynthesisDuration.Milliseconds(),
		DurationMillis:  t.Duration.Milliseconds(),
		Error:           t.Error,
		StartedAt:       t.StartedAt.UTC(),
		CreatedAt:       time.Now().UTC(),
	}
}

// Query 事件日志查询条件，零值字段不参与过滤
type Query struct {
	SessionID string    `json:"session_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	Since     time.Time `json:"since,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// DefaultQueryLimit 未指定 Limit 时的返回上限
const DefaultQueryLimit = 50

// MaxQueryLimit 单次查询的返回上限
const MaxQueryLimit = 500

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultQueryLimit
	case q.Limit > MaxQueryLimit:
		return MaxQueryLimit
	default:
		return q.Limit
	}
}

func (q Query) matches(e TurnEvent) bool {
	if q.SessionID != "" && e.SessionID != q.SessionID {
		return false
	}
	if q.DeviceID != "" && e.DeviceID != q.DeviceID {
		return false
	}
	if !q.Since.IsZero() && e.StartedAt.Before(q.Since) {
		return false
	}
	return true
}
