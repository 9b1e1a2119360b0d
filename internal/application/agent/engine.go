// Package agent 实现 LLM 驱动的工具编排回合
package agent

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"

	"mediaforge-ai-api/internal/application/billing"
	"mediaforge-ai-api/internal/application/tool"
	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/service"
)

var tracer = otel.Tracer("agent")

const (
	// DefaultMaxIterations 单回合默认的模型决策轮数上限
	DefaultMaxIterations = 6
	// DefaultHistoryLimit 默认加载的历史消息条数
	DefaultHistoryLimit = 40

	workflowAgentRun = "agent_run"
)

// ModelProvider ChatModel 获取 port
type ModelProvider interface {
	Default(ctx context.Context) (model.ToolCallingChatModel, error)
	DefaultModelName() (provider, model string)
}

// HistoryLoader 对话历史加载 port
type HistoryLoader interface {
	ListMessages(ctx context.Context, chatID string, limit int) ([]*entity.ChatMessage, error)
}

// Input 一次回合的输入
type Input struct {
	UserID    string
	SessionID string
	ChatID    string
	Message   string
	// FileURL 用户上传文件的地址，可为空
	FileURL  string
	Settings entity.UserSettings
}

// Usage 一次回合的用量汇总
type Usage struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	ToolCalls        int   `json:"tool_calls"`
	CreditsSpent     int64 `json:"credits_spent"`
}

// Part 回合产出的媒体引用
type Part struct {
	Tool string `json:"tool"`
	URL  string `json:"url"`
}

// Output 一次回合的结果。Incomplete 表示回合达到决策轮数上限而提前结束，
// 已执行的工具与已扣减的信用点不回滚。
type Output struct {
	Content    string `json:"content"`
	Parts      []Part `json:"parts,omitempty"`
	Usage      Usage  `json:"usage"`
	Incomplete bool   `json:"incomplete,omitempty"`

	// NewMessages 回合内新产生的消息，由调用方负责持久化
	NewMessages []*entity.ChatMessage `json:"-"`
}

// Engine Agent 回合引擎。模型在固定工具目录内自主选择工具，
// 每次工具执行前完成计价与原子预扣减，全部用量落使用流水。
type Engine struct {
	models        ModelProvider
	registry      *tool.Registry
	meter         *billing.Meter
	recorder      service.UsageRecorder
	history       HistoryLoader
	systemPrompt  string
	maxIterations int
	historyLimit  int
}

// Config 引擎配置
type Config struct {
	SystemPrompt  string
	MaxIterations int
	HistoryLimit  int
}

// NewEngine 创建回合引擎。history 可为 nil（无历史对话场景）。
func NewEngine(models ModelProvider, registry *tool.Registry, meter *billing.Meter, recorder service.UsageRecorder, history HistoryLoader, cfg Config) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Engine{
		models:        models,
		registry:      registry,
		meter:         meter,
		recorder:      recorder,
		history:       history,
		systemPrompt:  cfg.SystemPrompt,
		maxIterations: cfg.MaxIterations,
		historyLimit:  cfg.HistoryLimit,
	}
}

const defaultSystemPrompt = `You are a creative media assistant. You can generate images, videos, music and speech with the tools provided. Use a tool when the user asks for media; answer directly when a text reply suffices. Ask for clarification instead of guessing missing required inputs.`

// buildMessages 组装回合初始上下文：系统提示词 + 历史 + 新用户消息
func (e *Engine) buildMessages(ctx context.Context, in *Input) ([]*schema.Message, error) {
	messages := []*schema.Message{schema.SystemMessage(e.systemPrompt)}

	if e.history != nil && in.ChatID != "" {
		history, err := e.history.ListMessages(ctx, in.ChatID, e.historyLimit)
		if err != nil {
			return nil, err
		}
		for _, m := range history {
			switch m.Role {
			case entity.RoleUser:
				messages = append(messages, schema.UserMessage(m.Content))
			case entity.RoleAssistant:
				if strings.TrimSpace(m.Content) != "" {
					messages = append(messages, schema.AssistantMessage(m.Content, nil))
				}
			default:
				// tool 消息的配对 tool_calls 不持久化，跳过
			}
		}
	}

	userContent := in.Message
	if in.FileURL != "" {
		userContent = userContent + "\n\nAttached file: " + in.FileURL
	}
	messages = append(messages, schema.UserMessage(userContent))
	return messages, nil
}
