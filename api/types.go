package api

import (
	"time"

	"github.com/BaSui01/teddyvoice/eventlog"
	"github.com/BaSui01/teddyvoice/internal/cache"
	"github.com/BaSui01/teddyvoice/internal/pool"
	"github.com/BaSui01/teddyvoice/internal/server"
	"github.com/BaSui01/teddyvoice/session"
)

// =============================================================================
// 🧸 会话
// =============================================================================

// SessionListResponse GET /api/v1/sessions
type SessionListResponse struct {
	Sessions []session.ClientStats `json:"sessions"`
	Total    int                   `json:"total"`
}

// SessionStatsResponse GET /api/v1/sessions/stats
type SessionStatsResponse struct {
	Registry    session.RegistryStats `json:"registry"`
	Buffers     BufferTotals          `json:"buffers"`
	Synthesis   SynthesisTotals       `json:"synthesis"`
	EventLog    *pool.Stats           `json:"event_log,omitempty"`
	Connections *server.ConnStats     `json:"connections,omitempty"`
	Cache       *cache.Stats          `json:"cache,omitempty"`
}

// BufferTotals 所有在线会话的缓冲区合计
type BufferTotals struct {
	InputBytes         int    `json:"input_bytes"`
	OutputBytes        int    `json:"output_bytes"`
	InputDroppedBytes  uint64 `json:"input_dropped_bytes_total"`
	OutputDroppedBytes uint64 `json:"output_dropped_bytes_total"`
}

// SynthesisTotals 所有在线会话的合成连接合计
type SynthesisTotals struct {
	Connected     int    `json:"connected"`
	Reconnecting  int    `json:"reconnecting"`
	Terminal      int    `json:"terminal"`
	FramesRelayed uint64 `json:"frames_relayed_total"`
}

// Summarize 汇总会话快照
func Summarize(list []session.ClientStats) (BufferTotals, SynthesisTotals) {
	var b BufferTotals
	var s SynthesisTotals
	for _, c := range list {
		b.InputBytes += c.Input.Bytes
		b.OutputBytes += c.Output.Bytes
		b.InputDroppedBytes += c.Input.DroppedBytesTotal
		b.OutputDroppedBytes += c.Output.DroppedBytesTotal

		switch {
		case c.Synthesis.Terminal:
			s.Terminal++
		case c.Synthesis.Connected:
			s.Connected++
		case c.Synthesis.ReconnectAttempts > 0:
			s.Reconnecting++
		}
		s.FramesRelayed += c.Synthesis.FramesRelayed
	}
	return b, s
}

// DeviceSessionResponse GET /api/v1/devices/{id}/last-session
type DeviceSessionResponse struct {
	DeviceID string              `json:"device_id"`
	Session  session.ClientStats `json:"session"`
}

// =============================================================================
// 📜 交互记录
// =============================================================================

// TurnListResponse GET /api/v1/turns
type TurnListResponse struct {
	Turns []eventlog.TurnEvent `json:"turns"`
	Count int                  `json:"count"`
	Since *time.Time           `json:"since,omitempty"`
}
