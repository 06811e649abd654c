package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/api"
	"github.com/BaSui01/teddyvoice/eventlog"
	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 📜 交互记录
// =============================================================================

// TurnHandler 家长端交互记录查询
type TurnHandler struct {
	store  eventlog.Store
	logger *zap.Logger
}

// NewTurnHandler 创建交互记录处理器
func NewTurnHandler(store eventlog.Store, logger *zap.Logger) *TurnHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnHandler{store: store, logger: logger.With(zap.String("component", "turn_api"))}
}

// Register 挂载路由
func (h *TurnHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/turns", h.HandleList)
}

// HandleList 按 session_id、device_id、since、limit 查询，按开始时间倒序
func (h *TurnHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", eventlog.DefaultQueryLimit)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	since, err := queryTime(r, "since")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	q := eventlog.Query{
		SessionID: r.URL.Query().Get("session_id"),
		DeviceID:  r.URL.Query().Get("device_id"),
		Since:     since,
		Limit:     limit,
	}
	turns, err := h.store.List(r.Context(), q)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "query turn events failed").WithCause(err), h.logger)
		return
	}
	if turns == nil {
		turns = []eventlog.TurnEvent{}
	}

	resp := api.TurnListResponse{Turns: turns, Count: len(turns)}
	if !since.IsZero() {
		resp.Since = &since
	}
	WriteSuccess(w, r, resp)
}
