// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 moderation 提供文本内容审核抽象，对孩子的输入与模型的回复做双向检查。

# 概述

审核结论 [Verdict] 只有放行与拦截两种，拦截不是错误：调用方应把
它当作正常分支，改用固定的安全回复。只有审核服务本身不可用时
Check 才返回错误。

# 核心类型

  - [Moderator]：Name / Check
  - [OpenAIModerator]：OpenAI Moderation API（omni-moderation-latest）
  - [KeywordModerator]：本地关键词黑名单，按单词匹配
  - [Chain]：依次执行，第一个拦截结论生效
  - [AllowAll]：开发环境使用的放行实现
*/
package moderation
