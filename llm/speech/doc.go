// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 speech 提供语音转写 (STT) 与流式语音合成 (TTS) 接入层。

# 概述

对话回合只依赖两个接口：[Transcriber] 把一段缓冲音频转为文本与
置信度；[StreamDialer] 建立一条持久的合成连接 [SynthesisStream]，
文本以 context_id 分轮提交，音频帧异步推回。

# 核心接口

  - Transcriber：Name / Transcribe，返回 Transcription{Text, Confidence, Language}
  - StreamDialer：Dial(StreamConfig)，握手后发送声音参数初始化帧
  - SynthesisStream：SendText / Recv / Close
  - SynthesisEvent：一帧音频，或某个 context 的结束标记

# 主要能力

  - OpenAI STT 适配：OpenAISTTProvider 接入 Whisper API，PCM 自动封装
    为 WAV，置信度由片段的 avg_logprob 与 no_speech_prob 推算。
  - Deepgram STT 适配：DeepgramProvider 以 linear16 直接上传原始 PCM，
    使用服务端返回的置信度与语言检测结果。
  - ElevenLabs 流式合成：ElevenLabsDialer 接入 multi-stream-input
    WebSocket，每轮回复一个 context，flush 后关闭上下文并等待 isFinal。
  - 声音解析：ElevenLabsDialer 同时实现 [VoiceResolver]，按 id、名称
    (忽略大小写) 查找声音，找不到时使用列表第一项。
  - 备用合成：OpenAITTSDialer 每段文本请求一次 /v1/audio/speech，
    重采样切帧后推回；[FallbackDialer] 按顺序尝试多个拨号器。
  - 错误分类：HTTP 429/5xx 与网络错误为可重试，其余为不可重试；
    连接读写失败统一为 CONNECTION_LOST。
*/
package speech
