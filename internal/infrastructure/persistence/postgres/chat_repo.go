// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mediaforge-ai-api/internal/domain/entity"
)

// ChatRepository 对话仓储实现
type ChatRepository struct {
	client *Client
}

// NewChatRepository 创建对话仓储
func NewChatRepository(client *Client) *ChatRepository {
	return &ChatRepository{client: client}
}

// Create 创建对话
func (r *ChatRepository) Create(ctx context.Context, chat *entity.Chat) error {
	ctx, span := tracer.Start(ctx, "postgres.ChatRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(chat).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取对话
func (r *ChatRepository) GetByID(ctx context.Context, id string) (*entity.Chat, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChatRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chat entity.Chat
	if err := db.First(&chat, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

// ListMessages 返回对话最近 limit 条消息，按时间升序
func (r *ChatRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]*entity.ChatMessage, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChatRepository.ListMessages")
	defer span.End()

	if limit <= 0 {
		limit = 40
	}

	db := getDB(ctx, r.client.db)

	// 先取最近 limit 条（倒序），再反转为时间升序
	var messages []*entity.ChatMessage
	if err := db.Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AppendMessages 追加消息
func (r *ChatRepository) AppendMessages(ctx context.Context, messages []*entity.ChatMessage) error {
	ctx, span := tracer.Start(ctx, "postgres.ChatRepository.AppendMessages")
	defer span.End()

	if len(messages) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	if err := db.Create(&messages).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append chat messages: %w", err)
	}
	return nil
}
