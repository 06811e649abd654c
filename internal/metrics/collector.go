// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。
// 所有 Record 方法对 nil 接收者安全，组件可以不接指标运行。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 会话指标
	sessionsActive prometheus.Gauge
	sessionsTotal  *prometheus.CounterVec
	gatewayFrames  *prometheus.CounterVec

	// 对话回合指标
	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	stateTransitions *prometheus.CounterVec

	// 上游调用指标
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	// 缓冲区与合成连接指标
	bufferDroppedBytes  *prometheus.CounterVec
	synthesisReconnects *prometheus.CounterVec
	synthesisFrames     prometheus.Counter

	// 事件日志指标
	eventLogRecords *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 会话指标
	c.sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active device sessions",
		},
	)

	c.sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of session lifecycle events",
		},
		[]string{"event"}, // created, closed, rejected
	)

	c.gatewayFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_frames_total",
			Help:      "Total number of frames exchanged with devices",
		},
		[]string{"direction", "type"},
	)

	// 对话回合指标
	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of completed turns",
		},
		[]string{"source", "outcome"},
	)

	c.turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Turn duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 7.5, 10},
		},
		[]string{"source", "outcome"},
	)

	c.stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_state_transitions_total",
			Help:      "Total number of turn pipeline state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// 上游调用指标
	c.providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of upstream provider calls",
		},
		[]string{"provider", "kind", "status"},
	)

	c.providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Upstream provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "kind"},
	)

	// 缓冲区与合成连接指标
	c.bufferDroppedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_dropped_bytes_total",
			Help:      "Total bytes evicted from audio ring buffers",
		},
		[]string{"direction"},
	)

	c.synthesisReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_reconnects_total",
			Help:      "Total number of synthesis link connect attempts",
		},
		[]string{"result"}, // success, failure, exhausted
	)

	c.synthesisFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_frames_total",
			Help:      "Total number of synthesized audio frames relayed",
		},
	)

	// 事件日志指标
	c.eventLogRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventlog_records_total",
			Help:      "Total number of turn records handled by the event log",
		},
		[]string{"status"}, // recorded, failed, dropped
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🧸 会话指标记录
// =============================================================================

// SessionCreated 记录会话创建
func (c *Collector) SessionCreated() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
	c.sessionsTotal.WithLabelValues("created").Inc()
}

// SessionClosed 记录会话关闭
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
	c.sessionsTotal.WithLabelValues("closed").Inc()
}

// SessionRejected 记录因上限被拒绝的连接
func (c *Collector) SessionRejected() {
	if c == nil {
		return
	}
	c.sessionsTotal.WithLabelValues("rejected").Inc()
}

// RecordFrame 记录网关收发的帧，direction 为 in/out
func (c *Collector) RecordFrame(direction, frameType string) {
	if c == nil {
		return
	}
	c.gatewayFrames.WithLabelValues(direction, frameType).Inc()
}

// =============================================================================
// 🔁 对话回合指标记录
// =============================================================================

// RecordTurn 记录一个结束的回合
func (c *Collector) RecordTurn(source, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(source, outcome).Inc()
	c.turnDuration.WithLabelValues(source, outcome).Observe(duration.Seconds())
}

// RecordStateTransition 记录回合状态转换
func (c *Collector) RecordStateTransition(from, to string) {
	if c == nil {
		return
	}
	c.stateTransitions.WithLabelValues(from, to).Inc()
}

// RecordProviderCall 记录一次上游调用，kind 为 transcribe/moderate/generate/synthesize
func (c *Collector) RecordProviderCall(provider, kind, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.providerCallsTotal.WithLabelValues(provider, kind, status).Inc()
	c.providerCallDuration.WithLabelValues(provider, kind).Observe(duration.Seconds())
}

// =============================================================================
// 🎙️ 缓冲区与合成连接指标记录
// =============================================================================

// RecordBufferDrop 记录缓冲区淘汰的字节数，direction 为 input/output
func (c *Collector) RecordBufferDrop(direction string, bytes int) {
	if c == nil {
		return
	}
	c.bufferDroppedBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RecordSynthesisConnect 记录一次合成连接尝试
func (c *Collector) RecordSynthesisConnect(result string) {
	if c == nil {
		return
	}
	c.synthesisReconnects.WithLabelValues(result).Inc()
}

// RecordSynthesisFrame 记录一帧转发到输出缓冲区的合成音频
func (c *Collector) RecordSynthesisFrame() {
	if c == nil {
		return
	}
	c.synthesisFrames.Inc()
}

// RecordEventLog 记录事件日志写入结果
func (c *Collector) RecordEventLog(status string) {
	if c == nil {
		return
	}
	c.eventLogRecords.WithLabelValues(status).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
