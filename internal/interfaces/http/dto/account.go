package dto

import (
	"time"

	"mediaforge-ai-api/internal/domain/entity"
)

// CreditBalanceResponse 信用点余额响应
type CreditBalanceResponse struct {
	UserID  string `json:"user_id"`
	Credits int64  `json:"credits"`
	// DailySpent 当日已消耗的信用点
	DailySpent int64 `json:"daily_spent"`
	// DailyCap 单日消耗上限，0 表示不限制
	DailyCap int64 `json:"daily_cap"`
}

// UsageRecordResponse 使用流水条目响应
type UsageRecordResponse struct {
	ID               string    `json:"id"`
	ChatID           string    `json:"chat_id,omitempty"`
	Kind             string    `json:"kind"`
	FunctionName     string    `json:"function_name"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	ToolCalls        int       `json:"tool_calls"`
	CreditCost       int64     `json:"credit_cost"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewUsageRecordResponse 从实体构建使用流水响应
func NewUsageRecordResponse(r *entity.UsageRecord) *UsageRecordResponse {
	return &UsageRecordResponse{
		ID:               r.ID,
		ChatID:           r.ChatID,
		Kind:             string(r.Kind),
		FunctionName:     r.FunctionName,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		ToolCalls:        r.ToolCalls,
		CreditCost:       r.CreditCost,
		CreatedAt:        r.CreatedAt,
	}
}

// PricingEntryResponse 计价条目响应
type PricingEntryResponse struct {
	Service string `json:"service"`
	Price   int64  `json:"price"`
	Unit    string `json:"unit"`
}

// NewPricingEntryResponse 从实体构建计价条目响应
func NewPricingEntryResponse(e *entity.PricingEntry) *PricingEntryResponse {
	return &PricingEntryResponse{
		Service: e.Service,
		Price:   e.Price,
		Unit:    string(e.Unit),
	}
}
