// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mediaforge-ai-api/internal/infrastructure/persistence/milvus"
	"mediaforge-ai-api/internal/infrastructure/persistence/postgres"
	"mediaforge-ai-api/internal/infrastructure/persistence/redis"
)

const readinessTimeout = 2 * time.Second

// HealthHandler 健康检查处理器
type HealthHandler struct {
	pg     *postgres.Client
	redis  *redis.Client
	milvus *milvus.Client
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(pg *postgres.Client, redisClient *redis.Client, milvusClient *milvus.Client) *HealthHandler {
	return &HealthHandler{
		pg:     pg,
		redis:  redisClient,
		milvus: milvusClient,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// runCheck 执行一次依赖探测并记录耗时
func runCheck(ctx context.Context, probe func(context.Context) error, failStatus string) *readinessCheck {
	check := &readinessCheck{}
	start := time.Now()
	err := probe(ctx)
	check.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		check.Status = failStatus
		check.Error = err.Error()
		return check
	}
	check.Status = "ok"
	return check
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

// Ready 就绪检查接口。Postgres 与 Redis 是硬依赖；
// Milvus 可选，故障时提示词检索降级运行，不影响就绪态。
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]*readinessCheck, 3)
	ready := true

	if h.pg == nil {
		checks["postgres"] = &readinessCheck{Status: "missing", Error: "postgres client not configured"}
		ready = false
	} else {
		checks["postgres"] = runCheck(ctx, h.pg.HealthCheck, "error")
		ready = ready && checks["postgres"].Status == "ok"
	}

	if h.redis == nil {
		checks["redis"] = &readinessCheck{Status: "missing", Error: "redis client not configured"}
		ready = false
	} else {
		checks["redis"] = runCheck(ctx, h.redis.HealthCheck, "error")
		ready = ready && checks["redis"].Status == "ok"
	}

	if h.milvus == nil {
		checks["milvus"] = &readinessCheck{Status: "disabled"}
	} else {
		checks["milvus"] = runCheck(ctx, h.milvus.HealthCheck, "degraded")
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: checks,
	}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}
