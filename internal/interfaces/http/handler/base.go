// Package handler 提供 HTTP 请求处理器
package handler

import (
	apperrors "mediaforge-ai-api/pkg/errors"
)

// bindError 把请求绑定错误转换为参数校验错误
func bindError(err error) error {
	return apperrors.New(apperrors.CodeValidationFailed, "invalid request body").WithDetail(err.Error())
}

// userNotFoundError 用户不存在
func userNotFoundError(userID string) error {
	return apperrors.New(apperrors.CodeUserNotFound, "user not found").WithDetail(userID)
}

// chatNotFoundError 对话不存在或不属于当前用户
func chatNotFoundError(chatID string) error {
	return apperrors.New(apperrors.CodeChatNotFound, "chat not found").WithDetail(chatID)
}
