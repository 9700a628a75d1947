package memory

import "time"

// Role определяет автора сообщения в истории диалога.
type Role string

const (
	// RoleUser — сообщение пользователя.
	RoleUser Role = "user"

	// RoleAssistant — ответ модели.
	RoleAssistant Role = "assistant"

	// RoleSystem — системная инструкция.
	RoleSystem Role = "system"
)

// Message — одно сообщение истории диалога.
// Передаётся агентам как message_history и хранится в Buffer.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UserMessage создаёт сообщение пользователя.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantMessage создаёт сообщение модели.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// SystemMessage создаёт системное сообщение.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content, Timestamp: time.Now()}
}
