// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供 teddyvoice 测试的共享工具和辅助函数。

# 概述

testutil 为 session、gateway、synthesis 等包的测试提供统一的
上下文、音频样本与断言辅助，避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 音频样本: PCM 生成内容确定的 16-bit PCM 数据
  - 断言工具: AssertMessagesEqual 比较对话历史

# 子包

  - testutil/mocks: 上游协作方的 Mock 实现，包括 MockProvider（语言模型）、
    MockTranscriber（语音转写）、MockModerator（内容审核）与
    MockSynthesisDialer（流式合成），均支持 Builder 模式与错误注入
*/
package testutil
