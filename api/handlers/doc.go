// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 实现 teddyvoice 管理接口的 HTTP 处理器。

# 概述

所有处理器基于标准 net/http，路由使用 ServeMux 的方法与路径参数模式。
响应统一为 Response（success + data + error + timestamp + request_id），
错误通过 WriteError 从 types.ErrorCode 映射到 HTTP 状态码，
非 *types.Error 一律按 INTERNAL_ERROR 返回且不暴露原始错误。

# 核心类型

  - HealthHandler：/health、/healthz、/ready、/version；就绪检查分关键与
    非关键，并发执行，关闭期间进入 draining
  - SessionHandler：在线会话列表、统计、查询、踢下线与设备最近会话
  - TurnHandler：家长端交互记录查询，读取 eventlog.Store
  - CheckFunc：函数形式的 HealthCheck，例如 Redis 与数据库 Ping
*/
package handlers
