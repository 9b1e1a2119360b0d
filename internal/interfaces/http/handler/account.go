// Package handler 提供 HTTP 请求处理器
package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mediaforge-ai-api/internal/domain/repository"
	"mediaforge-ai-api/internal/infrastructure/persistence/redis"
	"mediaforge-ai-api/internal/interfaces/http/dto"
	"mediaforge-ai-api/internal/interfaces/http/middleware"
	"mediaforge-ai-api/pkg/logger"
)

// AccountHandler 余额、使用流水与计价查询处理器
type AccountHandler struct {
	users    repository.UserRepository
	usage    repository.UsageRecordRepository
	pricing  repository.PricingRepository
	spend    *redis.SpendTracker
	dailyCap int64
}

// NewAccountHandler 创建账户查询处理器
func NewAccountHandler(
	users repository.UserRepository,
	usage repository.UsageRecordRepository,
	pricing repository.PricingRepository,
	spend *redis.SpendTracker,
	dailyCap int64,
) *AccountHandler {
	return &AccountHandler{
		users:    users,
		usage:    usage,
		pricing:  pricing,
		spend:    spend,
		dailyCap: dailyCap,
	}
}

// Credits 查询信用点余额
// @Summary 查询信用点余额
// @Tags Account
// @Produce json
// @Success 200 {object} dto.Response[dto.CreditBalanceResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/credits [get]
func (h *AccountHandler) Credits(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	if user == nil {
		dto.FromError(c, userNotFoundError(userID))
		return
	}

	// 日消耗是 Redis 近似值，读取失败按 0 展示
	var dailySpent int64
	if h.spend != nil {
		dailySpent, err = h.spend.GetDailySpend(ctx, userID, time.Now())
		if err != nil {
			logger.Warn(ctx, "failed to read daily spend", "error", err.Error())
			dailySpent = 0
		}
	}

	dto.Success(c, dto.CreditBalanceResponse{
		UserID:     user.ID,
		Credits:    user.Credits,
		DailySpent: dailySpent,
		DailyCap:   h.dailyCap,
	})
}

// Usage 分页查询使用流水
// @Summary 查询使用流水
// @Tags Account
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Success 200 {object} dto.Response[[]dto.UsageRecordResponse]
// @Router /v1/usage [get]
func (h *AccountHandler) Usage(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	pagination := repository.NewPagination(page, pageSize)

	result, err := h.usage.ListByUser(c.Request.Context(), middleware.GetUserID(c), pagination)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	items := make([]*dto.UsageRecordResponse, 0, len(result.Items))
	for _, r := range result.Items {
		items = append(items, dto.NewUsageRecordResponse(r))
	}

	dto.SuccessWithPage(c, items, dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// Pricing 查询当前生效的计价表
// @Summary 查询计价表
// @Tags Account
// @Produce json
// @Success 200 {object} dto.Response[[]dto.PricingEntryResponse]
// @Router /v1/pricing [get]
func (h *AccountHandler) Pricing(c *gin.Context) {
	entries, err := h.pricing.List(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}

	items := make([]*dto.PricingEntryResponse, 0, len(entries))
	for _, e := range entries {
		if !e.IsActive {
			continue
		}
		items = append(items, dto.NewPricingEntryResponse(e))
	}

	dto.Success(c, items)
}
