// 版权所有 2024 teddyvoice Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 config 提供 teddyvoice 的配置加载与热更新。

# 概述

配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，环境变量使用
TEDDYVOICE_ 前缀，嵌套字段以下划线连接，例如
TEDDYVOICE_PIPELINE_TURN_TIMEOUT。字符串切片使用逗号分隔。YAML 中的
${VAR} 在解析前展开；serve 与 migrate 以严格模式解析，未知的键直接报错。

# 核心类型

  - Config: 完整配置，各段直接复用对应包的配置结构
  - Loader: 配置加载器（Builder 模式），见 loader.go；结构与校验在 config.go
  - Reloader: 轮询配置文件，仅日志级别与关键词黑名单在运行期生效
*/
package config
