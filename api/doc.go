// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package api 定义 teddyvoice 管理接口的响应结构。
//
// # 接口概览
//
//   - GET    /health、/healthz、/ready、/version：健康与版本
//   - GET    /api/v1/sessions：在线会话快照
//   - GET    /api/v1/sessions/stats：注册表、缓冲区、合成连接、事件日志、连接与 Redis 统计
//   - GET    /api/v1/sessions/{id}：单个会话
//   - DELETE /api/v1/sessions/{id}：踢下线
//   - GET    /api/v1/devices/{id}/last-session：设备最近一次会话摘要
//   - GET    /api/v1/turns：家长端交互记录，支持 session_id、device_id、since、limit
//
// 设备流式连接挂载在 /v1/stream，协议见 gateway 包。
//
// # 认证
//
// 启用 auth 后，除健康检查外的所有路径都要求
//
//	Authorization: Bearer <jwt>
//
// 设备 token 的 subject 作为 device_id 写入会话。
package api
