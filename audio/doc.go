/*
包 audio 提供会话内音频数据的缓存与格式工具。

# 概述

RingBuffer 是固定容量、线程安全的音频块缓冲区，采用 drop-oldest
淘汰策略：缓冲区满时丢弃最旧的块并累计 droppedBytesTotal。实时语音
场景下过期音频没有价值，因此优先保证时效性而不是完整性。

# 核心类型

  - Chunk：不可变的音频字节与采集时间戳
  - RingBuffer：Write / Read / ReadChunk / Size / Len / Clear / Stats
  - Format：编码、采样率、声道数；String 返回下发给设备的格式名

# 主要能力

  - 拆分读取：Read(maxBytes) 拆开某个块时，剩余部分留在头部
  - 整帧读取：ReadChunk 保留合成服务的帧边界，按序转发
  - 唤醒通知：Notify 在写入后发出合并信号，读取方无需轮询
  - WAV 封装：EncodeWAV 为 16bit PCM 加上 RIFF 文件头
  - 重采样：Resample 转换 16bit PCM 的采样率，SplitFrames 按帧长切分
*/
package audio
