// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 types 定义各模块共享的基础类型，不依赖任何内部包。

# 概述

audio、session、synthesis、gateway、llm 等包通过本包交换对话消息与
结构化错误，避免相互引用。

# 核心类型

  - Message / Role：对话消息；Exchange 构造一轮完成的问答
  - Error / ErrorCode：结构化错误，区分可重试与不可重试的上游错误、
    连接丢失、重连耗尽、会话关闭、帧格式错误、回合超时等

# 主要能力

  - ClassifyHTTPStatus 把上游 HTTP 状态码映射为 TRANSIENT_PROVIDER
    （429、5xx）或 PERMANENT_PROVIDER（其余 4xx）
  - IsRetryable / GetErrorCode / IsCode 沿 errors.As 链判定
*/
package types
