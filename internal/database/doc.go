// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，是事件日志关系型存储
的底座。

# 概述

Open 按驱动名（postgres、mysql、sqlite）选择方言并建立 PoolManager。
sqlite 使用 glebarez/sqlite 纯 Go 驱动，无需 CGO。PoolManager 统一
配置连接池上限与生命周期，后台健康检查定时探活并上报连接数指标。

# 核心类型

  - PoolManager：DB / Ping / Stats / Close
  - PoolConfig：连接池配置，Validate 校验上下限
  - TransactionFunc：事务回调

# 主要能力

  - 事务：WithTransaction 单次执行；WithTransactionRetry 借助 llm/retry
    的指数退避，对死锁、序列化失败、sqlite 锁与断连重试
  - 指标：WithMetrics 在每次健康检查后记录 open / idle 连接数
*/
package database
