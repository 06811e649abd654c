// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package tlsutil 集中管理 TLS 设置：TLS 1.2+，仅 AEAD 密码套件。
//
// ServerTLSConfig 在 HTTPS 启动前同步加载证书；SecureHTTPClient 服务转写、
// 审核与语言模型调用；WebSocketHTTPClient 用于流式合成握手，只协商 http/1.1。
package tlsutil
