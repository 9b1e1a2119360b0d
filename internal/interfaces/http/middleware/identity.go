// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mediaforge-ai-api/pkg/logger"
)

const (
	// UserIDHeader 调用方身份头，由上游网关鉴权后注入
	UserIDHeader = "X-User-ID"
)

// IdentityConfig 身份中间件配置
type IdentityConfig struct {
	// SkipPaths 跳过身份校验的路径前缀
	SkipPaths []string
	// DefaultUserID 默认用户 ID（仅开发环境）
	DefaultUserID string
}

// Identity 调用方身份注入中间件。
// 本服务信任上游网关完成鉴权，只消费其注入的用户标识。
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if strings.HasPrefix(path, skip) {
				c.Next()
				return
			}
		}

		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			userID = cfg.DefaultUserID
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":     401,
				"message":  "missing user identity",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Set("user_id", userID)

		ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetUserID 从 Gin Context 中获取用户 ID
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// DefaultIdentitySkipPaths 默认跳过身份校验的路径
var DefaultIdentitySkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
