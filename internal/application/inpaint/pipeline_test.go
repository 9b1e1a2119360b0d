package inpaint

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-ai-api/internal/application/billing"
	"mediaforge-ai-api/internal/config"
	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/repository"
	"mediaforge-ai-api/internal/domain/service"
	"mediaforge-ai-api/internal/infrastructure/provider"
	"mediaforge-ai-api/internal/infrastructure/storage"
	apperrors "mediaforge-ai-api/pkg/errors"
)

type memUserRepo struct {
	mu      sync.Mutex
	credits map[string]int64
}

func (f *memUserRepo) Create(ctx context.Context, user *entity.User) error { return nil }

func (f *memUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &entity.User{ID: id, Credits: f.credits[id]}, nil
}

func (f *memUserRepo) Update(ctx context.Context, user *entity.User) error { return nil }

func (f *memUserRepo) DeductCredits(ctx context.Context, id string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credits[id] < amount {
		return repository.ErrInsufficientBalance
	}
	f.credits[id] -= amount
	return nil
}

func (f *memUserRepo) AddCredits(ctx context.Context, id string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[id] += amount
	return nil
}

func (f *memUserRepo) balance(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[id]
}

type memPricingRepo struct {
	entries map[string]*entity.PricingEntry
}

func (f *memPricingRepo) GetByService(ctx context.Context, svc string) (*entity.PricingEntry, error) {
	return f.entries[svc], nil
}

func (f *memPricingRepo) List(ctx context.Context) ([]*entity.PricingEntry, error) { return nil, nil }

func (f *memPricingRepo) Upsert(ctx context.Context, entry *entity.PricingEntry) error { return nil }

type captureRecorder struct {
	mu      sync.Mutex
	records []service.UsageInput
}

func (r *captureRecorder) Record(ctx context.Context, in service.UsageInput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, in)
}

// pngBase64 构造一张纯色 PNG 并编码为 base64
func pngBase64(t *testing.T, width, height int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

type pipelineEnv struct {
	users    *memUserRepo
	store    *storage.MemoryStore
	recorder *captureRecorder
	pipeline *Pipeline
}

func newPipelineEnv(t *testing.T, providerURL string, credits int64) *pipelineEnv {
	t.Helper()

	env := &pipelineEnv{
		users:    &memUserRepo{credits: map[string]int64{"u1": credits}},
		store:    storage.NewMemoryStore("http://media.local"),
		recorder: &captureRecorder{},
	}
	pricing := &memPricingRepo{entries: map[string]*entity.PricingEntry{
		ServiceName: {Service: ServiceName, Price: 6, Unit: entity.UnitPerMegapixel, IsActive: true},
	}}
	meter := billing.NewMeter(env.users, pricing, nil, 0)
	client := provider.NewClient(&config.GenerationConfig{
		BaseURL:    providerURL,
		MaxRetries: 0,
	})
	env.pipeline = NewPipeline(env.store, meter, client, env.recorder, nil)
	return env
}

func inpaintServer(t *testing.T, calls *atomic.Int32, requests *[]provider.InpaintRequest) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req provider.InpaintRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if requests != nil {
			mu.Lock()
			*requests = append(*requests, req)
			mu.Unlock()
		}
		json.NewEncoder(w).Encode(provider.Result{Assets: []provider.Asset{{
			URL:      "http://cdn/inpainted.png",
			MimeType: "image/png",
		}}})
	}))
}

func TestPipelineRunSuccess(t *testing.T) {
	var calls atomic.Int32
	var requests []provider.InpaintRequest
	srv := inpaintServer(t, &calls, &requests)
	defer srv.Close()

	env := newPipelineEnv(t, srv.URL, 100)
	out, err := env.pipeline.Run(context.Background(), &Input{
		UserID:      "u1",
		ImageBase64: "data:image/png;base64," + pngBase64(t, 4, 4),
		Prompt:      "replace the sky",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://cdn/inpainted.png", out.URL)
	// 4x4 图像不足 1 megapixel，按次向上取整
	assert.Equal(t, int64(1), out.CreditCost)
	assert.Equal(t, int64(99), env.users.balance("u1"))

	// 原图先落存储，生成请求引用存储地址
	assert.Equal(t, 1, env.store.Len())
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].ImageURL, "http://media.local/")
	assert.Empty(t, requests[0].MaskURL)
	assert.Equal(t, "replace the sky", requests[0].Prompt)
}

func TestPipelineRunWithMask(t *testing.T) {
	var calls atomic.Int32
	var requests []provider.InpaintRequest
	srv := inpaintServer(t, &calls, &requests)
	defer srv.Close()

	env := newPipelineEnv(t, srv.URL, 100)
	_, err := env.pipeline.Run(context.Background(), &Input{
		UserID:      "u1",
		ImageBase64: pngBase64(t, 4, 4),
		MaskBase64:  pngBase64(t, 4, 4),
		Prompt:      "remove the object",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, env.store.Len())
	require.Len(t, requests, 1)
	assert.NotEmpty(t, requests[0].MaskURL)
	assert.NotEqual(t, requests[0].ImageURL, requests[0].MaskURL)
}

func TestPipelineRejectsMalformedImage(t *testing.T) {
	var calls atomic.Int32
	srv := inpaintServer(t, &calls, nil)
	defer srv.Close()

	env := newPipelineEnv(t, srv.URL, 100)

	tests := []struct {
		name  string
		image string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("plain text"))},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.pipeline.Run(context.Background(), &Input{
				UserID:      "u1",
				ImageBase64: tt.image,
				Prompt:      "fix it",
			})
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.CodeValidationFailed, appErr.Code)
		})
	}

	// 校验失败不扣费也不触发生成
	assert.Equal(t, int64(100), env.users.balance("u1"))
	assert.Zero(t, calls.Load())
}

func TestPipelineRejectsEmptyPrompt(t *testing.T) {
	env := newPipelineEnv(t, "http://unused.local", 100)

	_, err := env.pipeline.Run(context.Background(), &Input{
		UserID:      "u1",
		ImageBase64: pngBase64(t, 4, 4),
		Prompt:      "   ",
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeValidationFailed, appErr.Code)
}

func TestPipelineNoRefundOnProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	env := newPipelineEnv(t, srv.URL, 100)
	_, err := env.pipeline.Run(context.Background(), &Input{
		UserID:      "u1",
		ImageBase64: pngBase64(t, 4, 4),
		Prompt:      "replace the sky",
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeProviderUnavailable, appErr.Code)

	// 生成失败不退款，流水仍然落账
	assert.Equal(t, int64(99), env.users.balance("u1"))
	require.Len(t, env.recorder.records, 1)
	assert.Equal(t, ServiceName, env.recorder.records[0].FunctionName)
	assert.Equal(t, int64(1), env.recorder.records[0].CreditCost)
}

func TestPipelineInsufficientCredits(t *testing.T) {
	var calls atomic.Int32
	srv := inpaintServer(t, &calls, nil)
	defer srv.Close()

	env := newPipelineEnv(t, srv.URL, 0)
	_, err := env.pipeline.Run(context.Background(), &Input{
		UserID:      "u1",
		ImageBase64: pngBase64(t, 4, 4),
		Prompt:      "replace the sky",
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeInsufficientCredits, appErr.Code)
	assert.Zero(t, calls.Load())
}
