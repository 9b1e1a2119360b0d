// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"
)

// UsageKind 使用流水类型
type UsageKind string

const (
	UsageKindLLM  UsageKind = "llm"
	UsageKindTool UsageKind = "tool"
)

// UsageRecord 单次 LLM 调用或工具执行的审计流水。
// 只追加，核心不修改、不删除；失败的调用同样记录（流水反映真实发生的工作量）。
type UsageRecord struct {
	ID               string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID           string          `json:"user_id" gorm:"type:uuid;index;not null"`
	SessionID        string          `json:"session_id" gorm:"type:uuid;index;not null"`
	ChatID           string          `json:"chat_id" gorm:"type:uuid;index"`
	Kind             UsageKind       `json:"kind" gorm:"type:varchar(8);not null"`
	FunctionName     string          `json:"function_name" gorm:"type:varchar(64);not null"`
	PromptTokens     int             `json:"prompt_tokens" gorm:"not null;default:0"`
	CompletionTokens int             `json:"completion_tokens" gorm:"not null;default:0"`
	TotalTokens      int             `json:"total_tokens" gorm:"not null;default:0"`
	ToolCalls        int             `json:"tool_calls" gorm:"not null;default:0"`
	CreditCost       int64           `json:"credit_cost" gorm:"not null;default:0"`
	RequestPayload   json.RawMessage `json:"request_payload,omitempty" gorm:"type:jsonb"`
	Metadata         json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}
