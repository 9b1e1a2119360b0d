// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RateLimiter 限流器接口。限流阈值与窗口在限流器创建时确定。
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit 按用户限流中间件
func RateLimit(enabled bool, limiter RateLimiter) gin.HandlerFunc {
	if !enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			userID = c.ClientIP()
		}

		key := "ratelimit:" + userID + ":" + c.Request.URL.Path

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			// 限流器故障时放行，避免影响业务
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     429,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
