// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 teddyvoice 对外端口（设备流 + 管理 API、Prometheus
指标）的 HTTP/HTTPS 服务器生命周期。

# 概述

Manager 封装 net/http.Server：非阻塞监听、异步错误上报、信号驱动的
优雅关闭，以及基于 ConnState 的连接统计。设备音频流在网关中升级为
WebSocket 后脱离 http.Server 的管理，Shutdown 不会等待它们，
需要通过 OnShutdown 注册的回调结束会话。

# 核心类型

  - Manager：Start/StartTLS/Shutdown/WaitForShutdown/Errors/Addr/IsRunning/ConnStats
  - Config：监听地址与各项超时。读写超时默认关闭，设备长连接由网关的
    心跳与写超时管理
  - ConnStats：在册连接数、空闲连接数、累计接入数与累计升级数
  - ManagerOption：WithUpgradeHook 在连接被接管时回调

# 主要能力

  - TLS：StartTLS 使用 tlsutil 的加固配置（TLS 1.2+，仅 AEAD）
  - 关闭顺序：先停止接收新连接并排空普通请求，再执行 OnShutdown 回调
*/
package server
