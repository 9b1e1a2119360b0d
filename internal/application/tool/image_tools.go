package tool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"

	"mediaforge-ai-api/internal/application/billing"
	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/infrastructure/provider"
)

const (
	NameTextToImage  = "text_to_image"
	NameImageToImage = "image_to_image"
	NameImageUpscale = "image_upscale"

	defaultImageWidth  = 1024
	defaultImageHeight = 1024
	maxImageDimension  = 4096
	maxPromptLength    = 4000
)

// TextToImageArgs 文生图参数
type TextToImageArgs struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

func (a *TextToImageArgs) Quantity() billing.Quantity {
	return billing.Quantity{
		Megapixels: float64(a.Width) * float64(a.Height) / 1e6,
	}
}

// TextToImageTool 文生图
type TextToImageTool struct {
	provider *provider.Client
}

func NewTextToImageTool(p *provider.Client) *TextToImageTool {
	return &TextToImageTool{provider: p}
}

func (t *TextToImageTool) Name() string   { return NameTextToImage }
func (t *TextToImageTool) Billable() bool { return true }

func (t *TextToImageTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: NameTextToImage,
		Desc: "根据文字描述生成一张图片。用户想要画图、生成图片、插画、海报时使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"prompt":          {Type: schema.String, Desc: "图片内容的英文描述，细节越多越好", Required: true},
			"negative_prompt": {Type: schema.String, Desc: "可选：不希望出现的内容"},
			"width":           {Type: schema.Integer, Desc: "可选：宽度像素，默认取用户偏好"},
			"height":          {Type: schema.Integer, Desc: "可选：高度像素，默认取用户偏好"},
		}),
	}
}

func (t *TextToImageTool) Validate(rawArgs string, settings entity.UserSettings) (Args, error) {
	var args TextToImageArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, validationError("malformed arguments: %v", err)
	}

	args.Prompt = strings.TrimSpace(args.Prompt)
	if args.Prompt == "" {
		return nil, validationError("prompt is required")
	}
	if len(args.Prompt) > maxPromptLength {
		return nil, validationError("prompt exceeds %d characters", maxPromptLength)
	}

	applyImageDefaults(&args.Width, &args.Height, settings)
	if err := checkImageDimensions(args.Width, args.Height); err != nil {
		return nil, err
	}
	return &args, nil
}

func (t *TextToImageTool) Execute(ctx context.Context, args Args) (*Result, error) {
	a := args.(*TextToImageArgs)

	result, err := t.provider.GenerateImage(ctx, &provider.ImageGenerationRequest{
		Prompt:         a.Prompt,
		NegativePrompt: a.NegativePrompt,
		Width:          a.Width,
		Height:         a.Height,
	})
	if err != nil {
		return nil, err
	}
	return assetResult(result), nil
}

// ImageToImageArgs 图生图参数
type ImageToImageArgs struct {
	Prompt         string  `json:"prompt"`
	SourceImageURL string  `json:"source_image_url"`
	Strength       float64 `json:"strength,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
}

func (a *ImageToImageArgs) Quantity() billing.Quantity {
	return billing.Quantity{
		Megapixels: float64(a.Width) * float64(a.Height) / 1e6,
	}
}

// ImageToImageTool 图生图
type ImageToImageTool struct {
	provider *provider.Client
}

func NewImageToImageTool(p *provider.Client) *ImageToImageTool {
	return &ImageToImageTool{provider: p}
}

func (t *ImageToImageTool) Name() string   { return NameImageToImage }
func (t *ImageToImageTool) Billable() bool { return true }

func (t *ImageToImageTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: NameImageToImage,
		Desc: "以一张已有图片为底，按文字描述重新生成。用户上传了图片并要求修改风格或内容时使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"prompt":           {Type: schema.String, Desc: "期望效果的英文描述", Required: true},
			"source_image_url": {Type: schema.String, Desc: "底图地址", Required: true},
			"strength":         {Type: schema.Number, Desc: "可选：重绘强度 0~1，默认 0.75"},
			"width":            {Type: schema.Integer, Desc: "可选：输出宽度像素"},
			"height":           {Type: schema.Integer, Desc: "可选：输出高度像素"},
		}),
	}
}

func (t *ImageToImageTool) Validate(rawArgs string, settings entity.UserSettings) (Args, error) {
	var args ImageToImageArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, validationError("malformed arguments: %v", err)
	}

	args.Prompt = strings.TrimSpace(args.Prompt)
	args.SourceImageURL = strings.TrimSpace(args.SourceImageURL)
	if args.Prompt == "" {
		return nil, validationError("prompt is required")
	}
	if args.SourceImageURL == "" {
		return nil, validationError("source_image_url is required")
	}
	if args.Strength < 0 || args.Strength > 1 {
		return nil, validationError("strength must be within [0, 1]")
	}
	if args.Strength == 0 {
		args.Strength = 0.75
	}

	applyImageDefaults(&args.Width, &args.Height, settings)
	if err := checkImageDimensions(args.Width, args.Height); err != nil {
		return nil, err
	}
	return &args, nil
}

func (t *ImageToImageTool) Execute(ctx context.Context, args Args) (*Result, error) {
	a := args.(*ImageToImageArgs)

	result, err := t.provider.GenerateImage(ctx, &provider.ImageGenerationRequest{
		Prompt:         a.Prompt,
		SourceImageURL: a.SourceImageURL,
		Strength:       a.Strength,
		Width:          a.Width,
		Height:         a.Height,
	})
	if err != nil {
		return nil, err
	}
	return assetResult(result), nil
}

// ImageUpscaleArgs 图像放大参数
type ImageUpscaleArgs struct {
	ImageURL string `json:"image_url"`
	Factor   int    `json:"factor,omitempty"`
}

// Quantity 放大按次计价，输入图尺寸未知
func (a *ImageUpscaleArgs) Quantity() billing.Quantity {
	return billing.Quantity{}
}

// ImageUpscaleTool 图像放大
type ImageUpscaleTool struct {
	provider *provider.Client
}

func NewImageUpscaleTool(p *provider.Client) *ImageUpscaleTool {
	return &ImageUpscaleTool{provider: p}
}

func (t *ImageUpscaleTool) Name() string   { return NameImageUpscale }
func (t *ImageUpscaleTool) Billable() bool { return true }

func (t *ImageUpscaleTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: NameImageUpscale,
		Desc: "放大一张图片并增强清晰度。用户要求提升分辨率、放大图片时使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"image_url": {Type: schema.String, Desc: "待放大的图片地址", Required: true},
			"factor":    {Type: schema.Integer, Desc: "可选：放大倍数 2 或 4，默认 2", Enum: []string{"2", "4"}},
		}),
	}
}

func (t *ImageUpscaleTool) Validate(rawArgs string, _ entity.UserSettings) (Args, error) {
	var args ImageUpscaleArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, validationError("malformed arguments: %v", err)
	}

	args.ImageURL = strings.TrimSpace(args.ImageURL)
	if args.ImageURL == "" {
		return nil, validationError("image_url is required")
	}
	if args.Factor == 0 {
		args.Factor = 2
	}
	if args.Factor != 2 && args.Factor != 4 {
		return nil, validationError("factor must be 2 or 4")
	}
	return &args, nil
}

func (t *ImageUpscaleTool) Execute(ctx context.Context, args Args) (*Result, error) {
	a := args.(*ImageUpscaleArgs)

	result, err := t.provider.UpscaleImage(ctx, &provider.UpscaleRequest{
		ImageURL: a.ImageURL,
		Factor:   a.Factor,
	})
	if err != nil {
		return nil, err
	}
	return assetResult(result), nil
}

func applyImageDefaults(width, height *int, settings entity.UserSettings) {
	if *width == 0 {
		if settings.ImageWidth > 0 {
			*width = settings.ImageWidth
		} else {
			*width = defaultImageWidth
		}
	}
	if *height == 0 {
		if settings.ImageHeight > 0 {
			*height = settings.ImageHeight
		} else {
			*height = defaultImageHeight
		}
	}
}

func checkImageDimensions(width, height int) error {
	if width < 64 || height < 64 {
		return validationError("image dimensions must be at least 64x64")
	}
	if width > maxImageDimension || height > maxImageDimension {
		return validationError("image dimensions must not exceed %dx%d", maxImageDimension, maxImageDimension)
	}
	return nil
}

// assetResult 把生成产物打包成回灌给模型的 JSON
func assetResult(result *provider.Result) *Result {
	urls := make([]string, 0, len(result.Assets))
	for _, a := range result.Assets {
		urls = append(urls, a.URL)
	}

	payload := struct {
		Status string           `json:"status"`
		Assets []provider.Asset `json:"assets,omitempty"`
		Text   string           `json:"text,omitempty"`
	}{
		Status: "ok",
		Assets: result.Assets,
		Text:   result.Text,
	}
	b, _ := json.Marshal(payload)

	return &Result{
		Content:   string(b),
		AssetURLs: urls,
	}
}
