// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"mediaforge-ai-api/internal/application/inpaint"
	"mediaforge-ai-api/internal/interfaces/http/dto"
	"mediaforge-ai-api/internal/interfaces/http/middleware"
)

// InpaintHandler 图像重绘处理器
type InpaintHandler struct {
	pipeline *inpaint.Pipeline
}

// NewInpaintHandler 创建图像重绘处理器
func NewInpaintHandler(pipeline *inpaint.Pipeline) *InpaintHandler {
	return &InpaintHandler{pipeline: pipeline}
}

// Inpaint 执行一次图像重绘
// @Summary 图像重绘
// @Description 直通生成管线，不经过 Agent 决策，信用点按原图像素面积预扣减
// @Tags Generation
// @Accept json
// @Produce json
// @Param request body dto.InpaintRequest true "重绘请求"
// @Success 200 {object} dto.Response[dto.InpaintResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 402 {object} dto.ErrorResponse
// @Router /v1/images/inpaint [post]
func (h *InpaintHandler) Inpaint(c *gin.Context) {
	var req dto.InpaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.FromError(c, bindError(err))
		return
	}

	out, err := h.pipeline.Run(c.Request.Context(), &inpaint.Input{
		UserID:      middleware.GetUserID(c),
		ChatID:      req.ChatID,
		ImageBase64: req.ImageBase64,
		MaskBase64:  req.MaskBase64,
		Prompt:      req.Prompt,
	})
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.InpaintResponse{
		URL:        out.URL,
		CreditCost: out.CreditCost,
	})
}
