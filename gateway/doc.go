// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 gateway 把玩具设备的 WebSocket 连接接到 session.Registry 上。

# 概述

每个升级成功的连接对应一个会话。连接建立后先下发 connection 帧
（会话 id 与下行音频格式），随后由读写两个协程并行工作：

  - 读协程：二进制帧视为 PCM 音频；JSON 帧按 type 分发为 control、
    text、ping 或 base64 音频。非法帧只回 error 帧，不断开连接。
  - 写协程：按产出顺序下发输出缓冲区中的音频，再下发会话事件
    （control_response、transcript、terminated）。

任一协程退出、设备断开或会话在服务端结束，连接都会关闭并从注册表
移除会话。会话数达到上限时在升级前以 HTTP 503 拒绝。

入站帧经 x/time/rate 限速，超限帧回 RATE_LIMITED 错误后丢弃。

# 核心类型

  - Handler：http.Handler，挂载在 Config.Path
  - Sessions：网关依赖的注册表接口
  - InboundFrame / OutboundFrame：JSON 线协议
*/
package gateway
