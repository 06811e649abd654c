// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 teddyvoice 服务端程序入口。

# 概述

cmd/teddyvoice 把设备语音流网关、家长端管理 API、健康检查与
Prometheus 指标组装为一个进程，并提供数据库迁移、健康检查和版本
查询子命令。配置来自 YAML 文件与 TEDDYVOICE_ 前缀的环境变量，
日志级别与审核黑名单支持热更新。

# 核心类型

  - Server：主服务器，持有存储、会话注册表、HTTP 与 Metrics 双端口
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter：记录状态码与字节数，透传 Hijack 供 WebSocket 升级

# 主要能力

  - 子命令：serve、migrate（up/down/status/version/goto/force/reset）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、JWTAuth（设备令牌）、RateLimiter（按设备或 IP）
  - 存储：Redis（设备会话摘要、事件流）、GORM 数据库、MongoDB，按配置启用
  - 优雅关闭：停止后台循环 → 关闭 HTTP 并结束所有会话 → 写完事件日志 → 关闭存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
