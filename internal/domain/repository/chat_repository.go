package repository

import (
	"context"

	"mediaforge-ai-api/internal/domain/entity"
)

// ChatRepository 对话与消息仓储接口
type ChatRepository interface {
	Create(ctx context.Context, chat *entity.Chat) error
	GetByID(ctx context.Context, id string) (*entity.Chat, error)

	// ListMessages 返回对话最近 limit 条消息，按 created_at 升序
	ListMessages(ctx context.Context, chatID string, limit int) ([]*entity.ChatMessage, error)
	AppendMessages(ctx context.Context, messages []*entity.ChatMessage) error
}
