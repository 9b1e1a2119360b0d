// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"
)

// Role 对话角色枚举
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Chat 一个用户的持续对话
type Chat struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID    string    `json:"user_id" gorm:"type:uuid;index;not null"`
	Title     string    `json:"title" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Chat) TableName() string {
	return "chats"
}

// ChatMessage 对话中的单条消息。ToolCallID/ToolName 仅 role=tool 时有值。
type ChatMessage struct {
	ID         string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChatID     string          `json:"chat_id" gorm:"type:uuid;index;not null"`
	Role       Role            `json:"role" gorm:"type:varchar(16);not null"`
	Content    string          `json:"content" gorm:"type:text;not null"`
	ToolCallID string          `json:"tool_call_id,omitempty" gorm:"type:varchar(64)"`
	ToolName   string          `json:"tool_name,omitempty" gorm:"type:varchar(64)"`
	Metadata   json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

func NewChatMessage(chatID string, role Role, content string) *ChatMessage {
	return &ChatMessage{
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
