package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/config"
)

// TracerName 回合流水线与 HTTP 中间件共用的 instrumentation 名称
const TracerName = "github.com/BaSui01/teddyvoice"

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider。
// 遥测关闭时两者都为 nil，Tracer/Meter 退回全局 noop 实现，Shutdown 为空操作。
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	registrations []metric.Registration
}

// Option Init 选项
type Option func(*options)

type options struct {
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
}

// WithSpanExporter 以同步方式导出到给定 exporter，替代 OTLP gRPC
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = exp }
}

// WithMetricReader 使用给定 reader 采集指标，替代 OTLP gRPC 周期导出
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metricReader = r }
}

// Init 初始化 OTel SDK 并注册为全局 provider。
// cfg.Enabled 为 false 时不创建任何导出器。
func Init(cfg config.TelemetryConfig, logger *zap.Logger, opts ...Option) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	spanProcessor, err := newSpanProcessor(ctx, cfg, o.spanExporter)
	if err != nil {
		return nil, err
	}
	reader, err := newMetricReader(ctx, cfg, o.metricReader)
	if err != nil {
		_ = spanProcessor.Shutdown(ctx)
		return nil, err
	}

	// 已带采样决定的上游请求沿用该决定
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(spanProcessor),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRate(cfg.SampleRate)))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", clampRate(cfg.SampleRate)),
		zap.Bool("otlp", o.spanExporter == nil),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

func newSpanProcessor(ctx context.Context, cfg config.TelemetryConfig, exp sdktrace.SpanExporter) (sdktrace.SpanProcessor, error) {
	if exp != nil {
		return sdktrace.NewSimpleSpanProcessor(exp), nil
	}
	otlp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewBatchSpanProcessor(otlp), nil
}

func newMetricReader(ctx context.Context, cfg config.TelemetryConfig, r sdkmetric.Reader) (sdkmetric.Reader, error) {
	if r != nil {
		return r, nil
	}
	otlp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(otlp), nil
}

func clampRate(rate float64) float64 {
	switch {
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	default:
		return rate
	}
}

// Tracer 返回用于回合与 HTTP span 的 tracer
func (p *Providers) Tracer() trace.Tracer {
	if p == nil || p.tp == nil {
		return otel.Tracer(TracerName)
	}
	return p.tp.Tracer(TracerName)
}

// Meter 返回 OTel meter
func (p *Providers) Meter() metric.Meter {
	if p == nil || p.mp == nil {
		return otel.Meter(TracerName)
	}
	return p.mp.Meter(TracerName)
}

// ObserveSessions 注册在线会话数与缓冲区字节数的异步 gauge，
// 采集时调用 sessions 与 bufferedBytes。遥测关闭时为空操作。
func (p *Providers) ObserveSessions(sessions, bufferedBytes func() int64) error {
	if p == nil || p.mp == nil {
		return nil
	}
	meter := p.Meter()

	active, err := meter.Int64ObservableGauge("teddyvoice.sessions.active",
		metric.WithDescription("Device sessions currently registered"),
		metric.WithUnit("{session}"))
	if err != nil {
		return fmt.Errorf("create sessions gauge: %w", err)
	}
	buffered, err := meter.Int64ObservableGauge("teddyvoice.audio.buffered",
		metric.WithDescription("Audio bytes waiting in session buffers"),
		metric.WithUnit("By"))
	if err != nil {
		return fmt.Errorf("create buffered gauge: %w", err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(active, sessions())
		o.ObserveInt64(buffered, bufferedBytes())
		return nil
	}, active, buffered)
	if err != nil {
		return fmt.Errorf("register session callback: %w", err)
	}
	p.registrations = append(p.registrations, reg)
	return nil
}

// Shutdown 注销回调，刷新未导出的 span 与指标并关闭导出器，nil 安全
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, reg := range p.registrations {
		if err := reg.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("unregister callback: %w", err))
		}
	}
	p.registrations = nil
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildVersion 从构建信息读取模块版本，缺失时返回 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
