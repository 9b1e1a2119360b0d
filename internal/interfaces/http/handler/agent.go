// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mediaforge-ai-api/internal/application/agent"
	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/repository"
	"mediaforge-ai-api/internal/interfaces/http/dto"
	"mediaforge-ai-api/internal/interfaces/http/middleware"
	"mediaforge-ai-api/pkg/logger"
)

// AgentHandler Agent 回合处理器
type AgentHandler struct {
	engine *agent.Engine
	users  repository.UserRepository
	chats  repository.ChatRepository
}

// NewAgentHandler 创建 Agent 回合处理器
func NewAgentHandler(engine *agent.Engine, users repository.UserRepository, chats repository.ChatRepository) *AgentHandler {
	return &AgentHandler{
		engine: engine,
		users:  users,
		chats:  chats,
	}
}

// Run 执行一次 Agent 回合
// @Summary 执行 Agent 回合
// @Description 模型自主选择生成工具并返回最终回复，工具执行前完成信用点预扣减
// @Tags Agent
// @Accept json
// @Produce json
// @Param request body dto.AgentRunRequest true "回合请求"
// @Success 200 {object} dto.Response[dto.AgentRunResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 402 {object} dto.ErrorResponse
// @Router /v1/agent/run [post]
func (h *AgentHandler) Run(c *gin.Context) {
	in, userMsg, err := h.prepare(c)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	out, err := h.engine.Run(c.Request.Context(), in)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	h.persist(c.Request.Context(), userMsg, out)
	dto.Success(c, dto.NewAgentRunResponse(in.ChatID, out))
}

// Stream 流式执行一次 Agent 回合
// @Summary 流式执行 Agent 回合
// @Description 通过 SSE 下发最终回复的内容增量，结束时下发完整回合结果
// @Tags Agent
// @Accept json
// @Produce text/event-stream
// @Param request body dto.AgentRunRequest true "回合请求"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/agent/stream [post]
func (h *AgentHandler) Stream(c *gin.Context) {
	in, userMsg, err := h.prepare(c)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	contentCh := make(chan string, 16)
	doneCh := make(chan *agent.Output, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		out, err := h.engine.RunStream(ctx, in, func(delta string) {
			select {
			case contentCh <- delta:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errCh <- err
			return
		}
		doneCh <- out
	}()

	index := 0
	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-contentCh:
			if !ok {
				// 内容通道关闭，等待最终结果
				return true
			}
			c.SSEvent("delta", gin.H{
				"chunk": chunk,
				"index": index,
			})
			index++
			return true

		case out := <-doneCh:
			h.persist(ctx, userMsg, out)
			c.SSEvent("done", dto.NewAgentRunResponse(in.ChatID, out))
			return false

		case err := <-errCh:
			c.SSEvent("error", gin.H{
				"message": err.Error(),
			})
			return false

		case <-ctx.Done():
			// 客户端断开
			return false
		}
	})
}

// prepare 校验请求、解析对话与用户偏好，构建回合输入
func (h *AgentHandler) prepare(c *gin.Context) (*agent.Input, *entity.ChatMessage, error) {
	var req dto.AgentRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, nil, bindError(err)
	}

	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, userNotFoundError(userID)
	}

	chatID, err := h.resolveChat(ctx, userID, req.ChatID, req.Message)
	if err != nil {
		return nil, nil, err
	}

	ctx = logger.WithContext(ctx, logger.ChatIDKey, chatID)
	c.Request = c.Request.WithContext(ctx)

	in := &agent.Input{
		UserID:    userID,
		SessionID: uuid.New().String(),
		ChatID:    chatID,
		Message:   req.Message,
		FileURL:   req.FileURL,
		Settings:  user.DecodeSettings(),
	}

	// 用户消息实体先于回合创建，保证时间序早于回合内新消息
	userMsg := entity.NewChatMessage(chatID, entity.RoleUser, req.Message)

	return in, userMsg, nil
}

// resolveChat 解析目标对话：为空时创建新对话，否则校验归属
func (h *AgentHandler) resolveChat(ctx context.Context, userID, chatID, message string) (string, error) {
	if chatID == "" {
		chat := &entity.Chat{
			ID:     uuid.New().String(),
			UserID: userID,
			Title:  chatTitle(message),
		}
		if err := h.chats.Create(ctx, chat); err != nil {
			return "", err
		}
		return chat.ID, nil
	}

	chat, err := h.chats.GetByID(ctx, chatID)
	if err != nil {
		return "", err
	}
	if chat == nil || chat.UserID != userID {
		return "", chatNotFoundError(chatID)
	}
	return chat.ID, nil
}

// persist 持久化回合内产生的消息：用户消息 + 助手 / 工具消息。
// 持久化失败不影响已返回的回合结果，只打日志。
func (h *AgentHandler) persist(ctx context.Context, userMsg *entity.ChatMessage, out *agent.Output) {
	messages := make([]*entity.ChatMessage, 0, len(out.NewMessages)+1)
	messages = append(messages, userMsg)
	messages = append(messages, out.NewMessages...)

	if err := h.chats.AppendMessages(ctx, messages); err != nil {
		logger.Error(ctx, "failed to persist chat messages", err,
			"chat_id", userMsg.ChatID,
			"count", len(messages),
		)
	}
}

// chatTitle 用消息开头生成新对话标题
func chatTitle(message string) string {
	const maxTitle = 64
	runes := []rune(message)
	if len(runes) > maxTitle {
		return string(runes[:maxTitle])
	}
	return message
}
