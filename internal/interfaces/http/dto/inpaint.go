package dto

// InpaintRequest 图像重绘请求。图像与遮罩为 base64 编码，可带 data URL 前缀。
type InpaintRequest struct {
	ChatID      string `json:"chat_id"`
	ImageBase64 string `json:"image_base64" binding:"required"`
	MaskBase64  string `json:"mask_base64"`
	Prompt      string `json:"prompt" binding:"required,max=4000"`
}

// InpaintResponse 图像重绘响应
type InpaintResponse struct {
	URL        string `json:"url"`
	CreditCost int64  `json:"credit_cost"`
}
