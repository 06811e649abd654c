// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理回合事件日志的 Schema 版本。

# 概述

turn_events 表及其索引的 SQL 按方言（postgres、mysql、sqlite）内嵌在
embed.FS 中，由 golang-migrate 执行。服务启动且 database.auto_migrate
开启时调用 EnsureSchema 升级到最新版本；schema 处于 dirty 状态时拒绝启动，
需要运维用 "teddyvoice migrate force" 修复。

# 核心类型

  - Migrator / DefaultMigrator：封装 golang-migrate 实例，提供
    Up、Down、Steps、Goto、Force、Version、Status、Info。
  - Config：方言、连接 URL、版本表名与锁超时。
  - CLI：migrate 子命令的终端输出层。
  - EnsureSchema：启动时的一次性升级入口。
*/
package migration
