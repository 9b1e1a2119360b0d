package dto

import (
	"mediaforge-ai-api/internal/application/agent"
)

// AgentRunRequest Agent 回合请求
type AgentRunRequest struct {
	// ChatID 续接的对话，为空时自动创建新对话
	ChatID  string `json:"chat_id"`
	Message string `json:"message" binding:"required,max=8000"`
	// FileURL 用户上传文件的地址，可为空
	FileURL string `json:"file_url" binding:"omitempty,url,max=2048"`
}

// AgentRunResponse Agent 回合响应
type AgentRunResponse struct {
	ChatID     string       `json:"chat_id"`
	Content    string       `json:"content"`
	Parts      []agent.Part `json:"parts,omitempty"`
	Usage      agent.Usage  `json:"usage"`
	Incomplete bool         `json:"incomplete,omitempty"`
}

// NewAgentRunResponse 从回合输出构建响应
func NewAgentRunResponse(chatID string, out *agent.Output) *AgentRunResponse {
	return &AgentRunResponse{
		ChatID:     chatID,
		Content:    out.Content,
		Parts:      out.Parts,
		Usage:      out.Usage,
		Incomplete: out.Incomplete,
	}
}
