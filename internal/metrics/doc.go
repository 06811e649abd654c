// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的语音会话指标采集能力，覆盖
HTTP、会话、对话回合、上游调用、缓冲区与合成连接等维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，所有指标按 namespace 隔离。Collector 的记录方法对
nil 接收者安全，未配置指标时组件可以直接传 nil。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：活跃会话 Gauge，创建/关闭/拒绝计数，网关收发帧计数。
  - 回合指标：按 source/outcome 分组的回合总数与耗时，状态转换计数。
  - 上游指标：转写、审核、生成、合成调用的次数与耗时。
  - 缓冲区指标：环形缓冲区淘汰字节数（溢出只记指标，不报错）。
  - 合成连接指标：连接尝试结果（success/failure/exhausted）与转发帧数。
  - 事件日志指标：写入成功、失败与队列满丢弃的记录数。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
