// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package telemetry 初始化 OpenTelemetry SDK。
//
// 回合流水线与 HTTP 中间件的 span、在线会话数与缓冲区字节数的
// 异步 gauge 经 OTLP gRPC 导出；测试可用 WithSpanExporter 与
// WithMetricReader 换成内存实现。遥测关闭时使用全局 noop 实现，
// 不连接任何外部服务。
package telemetry
