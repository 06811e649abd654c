package types

import "time"

// Role 对话参与方
type Role string

const (
	// RoleSystem 人设提示，只由语言模型客户端注入，不进入历史
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 发送给语言模型的一条对话消息
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewUserMessage 孩子说的话（转写文本或文本帧）
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage 玩具的回复
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// Exchange 一轮完成的问答，两条消息共用同一时间戳
func Exchange(userText, replyText string) (Message, Message) {
	now := time.Now()
	return Message{Role: RoleUser, Content: userText, Timestamp: now},
		Message{Role: RoleAssistant, Content: replyText, Timestamp: now}
}
