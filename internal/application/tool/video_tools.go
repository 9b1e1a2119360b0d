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
	NameTextToVideo  = "text_to_video"
	NameImageToVideo = "image_to_video"

	defaultVideoDuration = 5
	maxVideoDuration     = 30
)

var validAspectRatios = map[string]bool{
	"16:9": true,
	"9:16": true,
	"1:1":  true,
	"4:3":  true,
}

// TextToVideoArgs 文生视频参数
type TextToVideoArgs struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
}

func (a *TextToVideoArgs) Quantity() billing.Quantity {
	return billing.Quantity{Seconds: float64(a.DurationSeconds)}
}

// TextToVideoTool 文生视频
type TextToVideoTool struct {
	provider *provider.Client
}

func NewTextToVideoTool(p *provider.Client) *TextToVideoTool {
	return &TextToVideoTool{provider: p}
}

func (t *TextToVideoTool) Name() string   { return NameTextToVideo }
func (t *TextToVideoTool) Billable() bool { return true }

func (t *TextToVideoTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: NameTextToVideo,
		Desc: "根据文字描述生成一段短视频。用户想要生成视频、动画片段时使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"prompt":           {Type: schema.String, Desc: "视频内容的英文描述", Required: true},
			"duration_seconds": {Type: schema.Integer, Desc: "可选：时长（秒），默认取用户偏好"},
			"aspect_ratio":     {Type: schema.String, Desc: "可选：画幅比例", Enum: []string{"16:9", "9:16", "1:1", "4:3"}},
		}),
	}
}

func (t *TextToVideoTool) Validate(rawArgs string, settings entity.UserSettings) (Args, error) {
	var args TextToVideoArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, validationError("malformed arguments: %v", err)
	}

	args.Prompt = strings.TrimSpace(args.Prompt)
	if args.Prompt == "" {
		return nil, validationError("prompt is required")
	}

	if err := applyVideoDefaults(&args.DurationSeconds, &args.AspectRatio, settings); err != nil {
		return nil, err
	}
	return &args, nil
}

func (t *TextToVideoTool) Execute(ctx context.Context, args Args) (*Result, error) {
	a := args.(*TextToVideoArgs)

	result, err := t.provider.GenerateVideo(ctx, &provider.VideoGenerationRequest{
		Prompt:          a.Prompt,
		DurationSeconds: a.DurationSeconds,
		AspectRatio:     a.AspectRatio,
	})
	if err != nil {
		return nil, err
	}
	return assetResult(result), nil
}

// ImageToVideoArgs 图生视频参数
type ImageToVideoArgs struct {
	Prompt          string `json:"prompt"`
	SourceImageURL  string `json:"source_image_url"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
}

func (a *ImageToVideoArgs) Quantity() billing.Quantity {
	return billing.Quantity{Seconds: float64(a.DurationSeconds)}
}

// ImageToVideoTool 图生视频
type ImageToVideoTool struct {
	provider *provider.Client
}

func NewImageToVideoTool(p *provider.Client) *ImageToVideoTool {
	return &ImageToVideoTool{provider: p}
}

func (t *ImageToVideoTool) Name() string   { return NameImageToVideo }
func (t *ImageToVideoTool) Billable() bool { return true }

func (t *ImageToVideoTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: NameImageToVideo,
		Desc: "以一张图片为首帧生成短视频。用户上传了图片并要求让它动起来时使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"prompt":           {Type: schema.String, Desc: "运动与镜头效果的英文描述", Required: true},
			"source_image_url": {Type: schema.String, Desc: "首帧图片地址", Required: true},
			"duration_seconds": {Type: schema.Integer, Desc: "可选：时长（秒），默认取用户偏好"},
			"aspect_ratio":     {Type: schema.String, Desc: "可选：画幅比例", Enum: []string{"16:9", "9:16", "1:1", "4:3"}},
		}),
	}
}

func (t *ImageToVideoTool) Validate(rawArgs string, settings entity.UserSettings) (Args, error) {
	var args ImageToVideoArgs
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

	if err := applyVideoDefaults(&args.DurationSeconds, &args.AspectRatio, settings); err != nil {
		return nil, err
	}
	return &args, nil
}

func (t *ImageToVideoTool) Execute(ctx context.Context, args Args) (*Result, error) {
	a := args.(*ImageToVideoArgs)

	result, err := t.provider.GenerateVideo(ctx, &provider.VideoGenerationRequest{
		Prompt:          a.Prompt,
		SourceImageURL:  a.SourceImageURL,
		DurationSeconds: a.DurationSeconds,
		AspectRatio:     a.AspectRatio,
	})
	if err != nil {
		return nil, err
	}
	return assetResult(result), nil
}

func applyVideoDefaults(duration *int, aspectRatio *string, settings entity.UserSettings) error {
	if *duration == 0 {
		if settings.VideoDuration > 0 {
			*duration = settings.VideoDuration
		} else {
			*duration = defaultVideoDuration
		}
	}
	if *duration < 0 || *duration > maxVideoDuration {
		return validationError("duration_seconds must be within (0, %d]", maxVideoDuration)
	}

	if *aspectRatio == "" && settings.AspectRatio != "" {
		*aspectRatio = settings.AspectRatio
	}
	if *aspectRatio != "" && !validAspectRatios[*aspectRatio] {
		return validationError("unsupported aspect_ratio: %s", *aspectRatio)
	}
	return nil
}
