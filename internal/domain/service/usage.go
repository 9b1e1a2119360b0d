package service

import (
	"context"
	"encoding/json"
)

// UsageInput 表示一次 LLM 调用或工具执行的可计费与可观测数据。
// 说明：该结构位于 domain/service，作为跨层的稳定契约（port），
// 避免应用层直接依赖基础设施实现。
type UsageInput struct {
	UserID    string
	SessionID string
	ChatID    string

	// Kind llm 或 tool
	Kind string
	// FunctionName LLM 调用为 workflow 名，工具执行为工具名
	FunctionName string

	PromptTokens     int
	CompletionTokens int
	ToolCalls        int
	CreditCost       int64

	// RequestPayload 已脱敏的请求参数，用于账单对账
	RequestPayload json.RawMessage
	Metadata       json.RawMessage
}

// UsageRecorder 负责记录使用流水（落库 + 发布事件）。
// 约定：实现必须 best-effort，记录失败只打日志，不阻塞、不影响主业务流程。
type UsageRecorder interface {
	Record(ctx context.Context, in UsageInput)
}
