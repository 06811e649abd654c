// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供语言模型接入层，为对话回合生成简短的回复。

# 概述

上层只依赖 [Provider] 接口：传入按时间排序的对话历史与新消息，
返回回复文本。错误统一使用 types.Error 分类：网络抖动、限流与 5xx
归为 TRANSIENT_PROVIDER（可重试），其余归为 PERMANENT_PROVIDER。

# 核心类型

  - [Provider]：Name / Generate
  - [ProviderFunc]：函数适配器
  - [OpenAIProvider]：OpenAI 兼容的 /v1/chat/completions 实现
  - [OpenAIConfig]：APIKey、BaseURL、Model、MaxTokens、Temperature、Timeout

# 子包

  - retry：单次调用的指数退避重试
  - moderation：内容审核
  - speech：语音转写与流式合成
  - tokenizer：历史窗口的 token 预算
*/
package llm
