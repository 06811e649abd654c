// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 eventlog 持久化对话回合记录，供家长端查看孩子与玩偶的交互历史。

# 概述

会话流水线在每个回合结束时调用 session.Recorder。Async 把回合转换为
TurnEvent 后提交到有界工作池，由后台写入 Store；队列满时丢弃并计数，
写入失败只记录日志与指标，从不影响回合本身。

Store 有三种实现：GormStore（postgres、mysql、sqlite，表结构由
internal/migration 维护）、RedisStore（Redis Stream，供下游订阅）与
MongoStore。Multi 把写入扇出到多个后端，查询只走第一个后端。Build 按
配置组装存储。

# 核心类型

  - TurnEvent、Query：记录与查询条件
  - Store、Nop、Multi：存储接口与组合
  - Async：实现 session.Recorder 的异步写入器
*/
package eventlog
