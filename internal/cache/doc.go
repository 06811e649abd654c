// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理进程内共享的 Redis 客户端。

# 概述

Manager 在启动时建立连接并 Ping 校验，之后：

  - 通过 Client() 把同一个客户端交给 eventlog 的 Redis Streams 存储；
  - 为 /ready 提供 Ping 与后台健康检查结果；
  - 以 JSON 缓存每台设备最近一次会话的摘要，供家长端接口读取；
  - 通过 GetStats 把服务端 INFO 摘要并入 /api/v1/sessions/stats。

所有键都带 KeyPrefix 前缀。Close 停止健康检查协程并释放连接，可重复调用。

# 核心类型

  - Manager：Get / Set / GetJSON / SetJSON / Delete / Exists / GetStats
  - Config：地址、连接池、前缀、默认 TTL 与健康检查间隔
  - Stats：从 INFO 解析的命中、内存与连接数
*/
package cache
