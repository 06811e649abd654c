// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 session 实现每台设备一条的实时语音会话及其对话回合流水线。

# 概述

Client 持有一个会话的全部可变状态：上行与下行 RingBuffer、有界历史
窗口、回合状态机以及独占的 synthesis.Link。设备音频累积到
ChunkThreshold 字节后才启动回合；同一会话同一时刻最多一个回合在执行，
执行期间到达的音频与文本只排队，回合结束后再检查是否启动下一个。

Pipeline 是所有会话共享的无状态流水线，按以下顺序推进状态：

	IDLE → BUFFERING → TRANSCRIBING → MODERATING_INPUT → GENERATING
	     → MODERATING_OUTPUT → SYNTHESIZING → IDLE

输入审核拦截时跳过生成，直接合成固定回复；回复审核拦截时同样替换为
固定回复。任一步骤失败或超过 TurnTimeout 时进入 FAILED，播放道歉语后
回到 IDLE。低置信度转写视为噪声，直接回到 IDLE 且不记录回合。

Registry 维护 id → Client 映射，负责会话上限、空闲清理与关闭。断开与
清理竞争时 Close 只执行一次。

# 核心类型

  - Registry：Create / Get / Remove / List / Stats / Run / CloseAll
  - Client：OnAudioFrame / OnText / OnControlMessage / NextOutput / Events
  - Pipeline：共享的回合执行器，依赖通过 Dependencies 注入
  - Turn、Recorder：回合摘要及其持久化接口
*/
package session
