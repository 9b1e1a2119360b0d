package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-ai-api/internal/domain/entity"
	apperrors "mediaforge-ai-api/pkg/errors"
)

func TestRegistryGetUnknownTool(t *testing.T) {
	r := NewRegistry(NewTextToImageTool(nil))

	_, err := r.Get("delete_all_files")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeToolNotFound, appErr.Code)
}

func TestRegistryDedupesAndKeepsOrder(t *testing.T) {
	r := NewRegistry(
		NewTextToImageTool(nil),
		NewImageUpscaleTool(nil),
		NewTextToImageTool(nil),
	)

	assert.Equal(t, []string{NameTextToImage, NameImageUpscale}, r.Names())
	assert.Len(t, r.Specs(), 2)
}

func TestTextToImageValidate(t *testing.T) {
	tool := NewTextToImageTool(nil)

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"prompt":"a cat"}`, false},
		{"valid with size", `{"prompt":"a cat","width":512,"height":512}`, false},
		{"malformed json", `{"prompt":`, true},
		{"missing prompt", `{}`, true},
		{"blank prompt", `{"prompt":"   "}`, true},
		{"dimension too small", `{"prompt":"a cat","width":32,"height":512}`, true},
		{"dimension too large", `{"prompt":"a cat","width":8192}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := tool.Validate(tt.raw, entity.UserSettings{})
			if tt.wantErr {
				require.Error(t, err)
				var appErr *apperrors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, apperrors.CodeValidationFailed, appErr.Code)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, args)
		})
	}
}

func TestTextToImageDefaultsFromSettings(t *testing.T) {
	tool := NewTextToImageTool(nil)

	args, err := tool.Validate(`{"prompt":"a cat"}`, entity.UserSettings{ImageWidth: 768, ImageHeight: 512})
	require.NoError(t, err)

	a := args.(*TextToImageArgs)
	assert.Equal(t, 768, a.Width)
	assert.Equal(t, 512, a.Height)
	assert.InDelta(t, 768*512/1e6, a.Quantity().Megapixels, 1e-9)
}

func TestTextToImageBuiltinDefaults(t *testing.T) {
	tool := NewTextToImageTool(nil)

	args, err := tool.Validate(`{"prompt":"a cat"}`, entity.UserSettings{})
	require.NoError(t, err)

	a := args.(*TextToImageArgs)
	assert.Equal(t, defaultImageWidth, a.Width)
	assert.Equal(t, defaultImageHeight, a.Height)
}

func TestImageToImageValidate(t *testing.T) {
	tool := NewImageToImageTool(nil)

	_, err := tool.Validate(`{"prompt":"oil painting"}`, entity.UserSettings{})
	require.Error(t, err, "source_image_url is required")

	_, err = tool.Validate(`{"prompt":"x","source_image_url":"http://h/i.png","strength":1.5}`, entity.UserSettings{})
	require.Error(t, err, "strength out of range")

	args, err := tool.Validate(`{"prompt":"x","source_image_url":"http://h/i.png"}`, entity.UserSettings{})
	require.NoError(t, err)
	assert.Equal(t, 0.75, args.(*ImageToImageArgs).Strength)
}

func TestImageUpscaleValidate(t *testing.T) {
	tool := NewImageUpscaleTool(nil)

	_, err := tool.Validate(`{"image_url":"http://h/i.png","factor":3}`, entity.UserSettings{})
	require.Error(t, err)

	args, err := tool.Validate(`{"image_url":"http://h/i.png"}`, entity.UserSettings{})
	require.NoError(t, err)

	a := args.(*ImageUpscaleArgs)
	assert.Equal(t, 2, a.Factor)
	// 放大按次计价
	assert.Zero(t, a.Quantity().Seconds)
	assert.Zero(t, a.Quantity().Megapixels)
}
