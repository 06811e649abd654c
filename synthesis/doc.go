// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 synthesis 管理每个会话独占的一条流式语音合成连接。

# 概述

Link 包装唯一的上游连接句柄：建连时发送声音与输出格式配置帧，
随后由后台读取循环把服务端推送的音频帧按到达顺序写入会话的输出
RingBuffer。读写失败或连接意外关闭时丢弃句柄并按指数退避重连，
第 N 次等待为 BaseDelay * 2^(N-1)。连续失败达到 MaxReconnectAttempts
后进入终止状态，返回 RECONNECT_EXHAUSTED 并回调会话。尝试计数只在
建连成功后归零。

# 核心类型

  - Link：Connect / SendText / SetVoice / Cancel / Stats / Close
  - Utterance：一次合成请求，Wait 在结束标记、断线或关闭时返回
  - Config：声音配置、退避基数、重连上限与建连超时

# 并发模型

  - 同一时刻最多一条活跃连接，新连接安装前关闭旧句柄
  - 并发 Connect 通过 singleflight 共享同一次建连
  - 过期 context 的残留帧直接丢弃，不会写入输出缓冲区
*/
package synthesis
