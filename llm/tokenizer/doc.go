// Package tokenizer 估算对话历史的 token 数，并按预算从最旧的消息开始裁剪。
//
// New 返回 tiktoken 计数器，编码不可用时回退到按字符类别的估算器。
package tokenizer
